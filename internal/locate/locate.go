// internal/locate/locate.go

// Package locate resolves logical fields to page elements through ordered
// fallback strategies. The first structural match wins even when a later
// strategy would land on a more plausible element; the portals' markup is
// inconsistent enough that strict ordering is the behavior, not a bug.
package locate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/poll"
)

const (
	// DefaultWait bounds the wait for asynchronously rendered elements.
	DefaultWait = 5 * time.Second
	// DefaultStep is the re-probe interval during the bounded wait.
	DefaultStep = 100 * time.Millisecond
)

// Locator finds elements on a page adapter.
type Locator struct {
	adapter page.Adapter
	logger  *zap.Logger
	wait    time.Duration
	step    time.Duration
}

// New creates a Locator with the default wait bound.
func New(adapter page.Adapter, logger *zap.Logger) *Locator {
	return &Locator{
		adapter: adapter,
		logger:  logger.Named("locate"),
		wait:    DefaultWait,
		step:    DefaultStep,
	}
}

// WithWait overrides the bounded-wait parameters. Used by tests.
func (l *Locator) WithWait(wait, step time.Duration) *Locator {
	l.wait = wait
	l.step = step
	return l
}

// First tries the strategies once, in order, and returns the first match or
// page.ErrNotFound.
func (l *Locator) First(ctx context.Context, strategies []page.Strategy) (*page.Handle, error) {
	for _, s := range strategies {
		h, err := l.adapter.Locate(ctx, s)
		if err == nil {
			return h, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, page.ErrNotFound
}

// Wait retries First on a bounded poll until a strategy matches or the wait
// bound elapses, for elements expected to render after page load. The caller
// receives page.ErrNotFound after the bound and decides whether the flow
// aborts.
func (l *Locator) Wait(ctx context.Context, strategies []page.Strategy) (*page.Handle, error) {
	var found *page.Handle

	attempts := int(l.wait / l.step)
	outcome := poll.Until(ctx, l.step, attempts, func(ctx context.Context, _ int) bool {
		h, err := l.First(ctx, strategies)
		if err != nil {
			return false
		}
		found = h
		return true
	})

	switch outcome {
	case poll.Resolved:
		return found, nil
	case poll.Canceled:
		return nil, ctx.Err()
	default:
		if len(strategies) > 0 {
			l.logger.Debug("Element did not appear within the wait bound.",
				zap.String("first_query", strategies[0].Query),
				zap.Duration("wait", l.wait))
		}
		return nil, page.ErrNotFound
	}
}
