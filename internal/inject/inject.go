// internal/inject/inject.go

// Package inject writes values into page fields so that the host page's
// reactive framework actually observes them. The event-dispatch contract
// itself lives in the page adapter; this package adds the pacing: a settle
// delay after each injection, and per-character typing for one-time codes.
package inject

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/internal/page"
)

const (
	// DefaultSettle lets the page's own reactive logic catch up after an
	// injection before the next field is touched.
	DefaultSettle = 100 * time.Millisecond
	// DefaultKeyDelay paces per-character code entry. Some portals mask or
	// re-split the code input and drop values written in one shot.
	DefaultKeyDelay = 50 * time.Millisecond
)

// Injector fills page fields through a page.Adapter.
type Injector struct {
	adapter  page.Adapter
	logger   *zap.Logger
	settle   time.Duration
	keyDelay time.Duration
}

// New creates an Injector with the default pacing.
func New(adapter page.Adapter, logger *zap.Logger) *Injector {
	return &Injector{
		adapter:  adapter,
		logger:   logger.Named("inject"),
		settle:   DefaultSettle,
		keyDelay: DefaultKeyDelay,
	}
}

// WithPacing overrides the settle and per-key delays. Used by tests.
func (i *Injector) WithPacing(settle, keyDelay time.Duration) *Injector {
	i.settle = settle
	i.keyDelay = keyDelay
	return i
}

// Fill writes value into the element and waits out the settle delay. A nil
// handle is a no-op; callers are expected to have checked for "not found"
// already.
func (i *Injector) Fill(ctx context.Context, h *page.Handle, value string) error {
	if h == nil {
		return nil
	}
	if err := i.adapter.SetValue(ctx, h, value); err != nil {
		return err
	}
	return sleep(ctx, i.settle)
}

// TypeSlow enters value one character at a time through the same
// framework-visible contract, emulating interactive typing.
func (i *Injector) TypeSlow(ctx context.Context, h *page.Handle, value string) error {
	if h == nil {
		return nil
	}
	runes := []rune(value)
	for n := 1; n <= len(runes); n++ {
		if err := i.adapter.SetValue(ctx, h, string(runes[:n])); err != nil {
			return err
		}
		if err := sleep(ctx, i.keyDelay); err != nil {
			return err
		}
	}
	return sleep(ctx, i.settle)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
