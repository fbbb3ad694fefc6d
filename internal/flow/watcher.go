// internal/flow/watcher.go
package flow

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LoadNotifier is the tab surface the watcher needs: a page-load
// subscription.
type LoadNotifier interface {
	OnLoad(fn func())
}

// Watcher runs one automation pass per page load. Passes are serialized: a
// navigation arriving mid-pass cancels the running pass first, the way a
// page unload kills in-page scripts. Load events arriving while a pass is
// being set up coalesce into one.
type Watcher struct {
	flow   *Flow
	logger *zap.Logger

	mu         sync.Mutex
	cancelPass context.CancelFunc
}

// NewWatcher creates a Watcher for the flow.
func NewWatcher(f *Flow, logger *zap.Logger) *Watcher {
	return &Watcher{
		flow:   f,
		logger: logger.Named("watcher"),
	}
}

// Watch subscribes to the tab's load events and blocks until ctx is
// canceled. An initial pass runs immediately for the page already loaded.
func (w *Watcher) Watch(ctx context.Context, tab LoadNotifier) error {
	loads := make(chan struct{}, 1)
	tab.OnLoad(func() {
		select {
		case loads <- struct{}{}:
		default:
		}
	})

	w.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.cancelPass != nil {
				w.cancelPass()
			}
			w.mu.Unlock()
			return ctx.Err()
		case <-loads:
			w.runPass(ctx)
		}
	}
}

// runPass cancels any pass still in flight and starts a fresh one for the
// new page.
func (w *Watcher) runPass(ctx context.Context) {
	w.mu.Lock()
	if w.cancelPass != nil {
		w.cancelPass()
	}
	passCtx, cancel := context.WithCancel(ctx)
	w.cancelPass = cancel
	w.mu.Unlock()

	go func() {
		defer cancel()
		if err := w.flow.Run(passCtx); err != nil && passCtx.Err() == nil {
			w.logger.Warn("Automation pass failed.", zap.Error(err))
		}
	}()
}
