// internal/submit/submit.go

// Package submit resolves and fires the login submission for one page load.
// At most one attempt is made per page load; retrying a failed login is an
// operator decision, not this component's.
package submit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/internal/locate"
	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/platform"
)

// Trigger fires the credential submission.
type Trigger struct {
	adapter page.Adapter
	locator *locate.Locator
	logger  *zap.Logger
}

func New(adapter page.Adapter, locator *locate.Locator, logger *zap.Logger) *Trigger {
	return &Trigger{
		adapter: adapter,
		locator: locator,
		logger:  logger.Named("submit"),
	}
}

// Submit resolves the portal's submit control and activates it. When no
// control resolves, it falls back to a synthesized Enter sequence on the
// secret field, which every portal's form handler accepts.
func (t *Trigger) Submit(ctx context.Context, prof *platform.Profile, secretField *page.Handle) error {
	if h := t.resolve(ctx, prof); h != nil {
		if err := t.adapter.Click(ctx, h); err != nil {
			return fmt.Errorf("clicking submit control: %w", err)
		}
		t.logger.Info("Submitted via login control.", zap.String("platform", string(prof.Platform)))
		return nil
	}

	if secretField == nil {
		return fmt.Errorf("no submit control and no secret field to key: %w", page.ErrNotFound)
	}
	if err := t.adapter.PressEnter(ctx, secretField); err != nil {
		return fmt.Errorf("enter-key submission: %w", err)
	}
	t.logger.Info("No submit control found; submitted via Enter key.",
		zap.String("platform", string(prof.Platform)))
	return nil
}

// resolve tries, in order: the portal's known selectors, an exact label
// match, then a label-contains match.
func (t *Trigger) resolve(ctx context.Context, prof *platform.Profile) *page.Handle {
	if len(prof.SubmitSelectors) > 0 {
		if h, err := t.locator.First(ctx, prof.SubmitSelectors); err == nil {
			return h
		}
	}

	controls, err := t.adapter.Controls(ctx)
	if err != nil {
		t.logger.Debug("Could not enumerate controls for submit resolution.", zap.Error(err))
		return nil
	}

	for _, label := range prof.SubmitLabels {
		for _, c := range controls {
			if strings.TrimSpace(c.Label) == label {
				return c.Handle
			}
		}
	}
	for _, label := range prof.SubmitLabels {
		for _, c := range controls {
			if strings.Contains(c.Label, label) {
				return c.Handle
			}
		}
	}
	return nil
}
