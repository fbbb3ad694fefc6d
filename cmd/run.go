package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/control"
	"github.com/pkonomy/sellerflow/internal/flow"
	"github.com/pkonomy/sellerflow/internal/observability"
	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/platform"
	"github.com/pkonomy/sellerflow/internal/session"
	"github.com/pkonomy/sellerflow/internal/smsapi"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Stores a login request and drives a browser through the portal's login",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			req := &schemas.LoginRequest{
				Platform:      schemas.Platform(viper.GetString("platform")),
				Identifier:    viper.GetString("id"),
				Secret:        viper.GetString("password"),
				AuxIdentifier: viper.GetString("aux-id"),
				AuxSecret:     viper.GetString("aux-password"),
			}
			prof, ok := platform.Lookup(req.Platform)
			if !ok {
				return fmt.Errorf("unknown platform %q", req.Platform)
			}
			startURL := viper.GetString("url")
			if startURL == "" {
				startURL = prof.LoginURL
			}

			store, err := session.Open(cfg.SessionDir(), logger)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer store.Close()

			if err := store.PutPending(ctx, req); err != nil {
				return fmt.Errorf("storing login request: %w", err)
			}

			client, err := smsapi.New(cfg.Server.BaseURL, cfg.Server.APIKey, logger)
			if err != nil {
				return fmt.Errorf("building code-source client: %w", err)
			}

			browser, err := page.Launch(ctx, page.BrowserOptions{
				Headless:        viper.GetBool("browser.headless"),
				UserDataDir:     cfg.Browser.UserDataDir,
				ExecPath:        cfg.Browser.ExecPath,
				IgnoreTLSErrors: cfg.Browser.IgnoreTLSErrors,
			}, logger)
			if err != nil {
				return fmt.Errorf("launching browser: %w", err)
			}
			defer browser.Close()

			tab := browser.NewTab()
			defer tab.Close()

			// The control server broadcasts flow status and relays manually
			// entered codes back into the flow.
			var ctrl *control.Server
			f := flow.New(flow.Deps{
				Adapter: tab,
				Session: store,
				Codes:   client,
				Creds:   client,
				Logger:  logger,
				OnStatus: func(s schemas.FlowStatus) {
					if ctrl != nil {
						ctrl.Broadcast(s)
					}
				},
				SettleDelay:  cfg.Automation.SettleDelay,
				RecheckDelay: cfg.Automation.RecheckDelay,
				PollInterval: cfg.Automation.PollInterval,
				LocateWait:   cfg.Automation.LocateWait,
				LocateStep:   cfg.Automation.LocateStep,
			})
			ctrl = control.New(cfg.Control.APIKey, f, logger)

			logger.Info("Navigating to login page",
				zap.String("platform", string(req.Platform)),
				zap.String("url", startURL),
			)
			if err := tab.Navigate(ctx, startURL, cfg.Browser.NavigationTimeout); err != nil {
				return fmt.Errorf("navigating to %s: %w", startURL, err)
			}

			watcher := flow.NewWatcher(f, logger)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return watcher.Watch(gctx, tab) })
			g.Go(func() error { return ctrl.ListenAndServe(gctx, cfg.Control.Addr) })
			return g.Wait()
		},
	}

	runCmd.Flags().String("platform", "", "Target platform (smartstore, coupang, 11st, esmplus, gmarket, auction)")
	runCmd.Flags().String("id", "", "Portal login identifier")
	runCmd.Flags().String("password", "", "Portal login password")
	runCmd.Flags().String("aux-id", "", "ESM master identifier (esmplus only)")
	runCmd.Flags().String("aux-password", "", "ESM master password (esmplus only)")
	runCmd.Flags().String("url", "", "Start URL. Defaults to the platform's login page.")
	runCmd.Flags().Bool("headless", false, "Run the browser headless. (Overrides config/env)")
	_ = runCmd.MarkFlagRequired("platform")
	_ = runCmd.MarkFlagRequired("id")
	_ = runCmd.MarkFlagRequired("password")

	return runCmd
}
