// internal/page/browser.go
package page

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserOptions carries the launch knobs for the operator's browser.
type BrowserOptions struct {
	Headless        bool
	UserDataDir     string
	ExecPath        string
	IgnoreTLSErrors bool
}

// Browser owns the exec allocator for one browser process. Tabs are created
// from it; closing the Browser tears down every tab.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// Launch starts the browser process and verifies it responds.
func Launch(ctx context.Context, opts BrowserOptions, logger *zap.Logger) (*Browser, error) {
	log := logger.Named("browser")
	log.Info("Launching browser.", zap.Bool("headless", opts.Headless))

	allocOpts := buildAllocatorOptions(opts)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)

	// Confirm the process starts and answers before handing it out.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTestTab := chromedp.NewContext(testCtx)
	defer cancelTestTab()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	return &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		logger:      log,
	}, nil
}

// NewTab opens a fresh tab adapter.
func (b *Browser) NewTab() *Tab {
	return NewTab(b.allocCtx, b.logger)
}

// Close shuts the browser process down.
func (b *Browser) Close() {
	b.logger.Debug("Shutting browser down.")
	b.allocCancel()
}

func buildAllocatorOptions(opts BrowserOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	// The seller portals fingerprint automation; turn off the flag that
	// advertises it.
	out = append(out,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("no-first-run", true),
	)
	if opts.IgnoreTLSErrors {
		out = append(out, chromedp.Flag("ignore-certificate-errors", true))
	}
	if opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}
