package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/control"
	"github.com/pkonomy/sellerflow/internal/flow"
	"github.com/pkonomy/sellerflow/internal/observability"
	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/session"
	"github.com/pkonomy/sellerflow/internal/smsapi"
)

// newServeCmd creates the `serve` command: a browser plus the control
// surface, with no stored login request. The operator navigates by hand and
// relays verification codes through the control API; second-factor pages the
// browser lands on are still handled automatically.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the control server against an operator-driven browser",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			store, err := session.Open(cfg.SessionDir(), logger)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer store.Close()

			client, err := smsapi.New(cfg.Server.BaseURL, cfg.Server.APIKey, logger)
			if err != nil {
				return fmt.Errorf("building code-source client: %w", err)
			}

			browser, err := page.Launch(ctx, page.BrowserOptions{
				Headless:        cfg.Browser.Headless,
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

			watcher := flow.NewWatcher(f, logger)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return watcher.Watch(gctx, tab) })
			g.Go(func() error { return ctrl.ListenAndServe(gctx, cfg.Control.Addr) })
			return g.Wait()
		},
	}

	return serveCmd
}
