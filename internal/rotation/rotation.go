// internal/rotation/rotation.go

// Package rotation handles forced password-change interstitials. The portal
// is deferred when it allows deferring; otherwise the secret is rotated by
// cyclic suffix substitution, reported to the credential store, and only
// then adopted locally. A partial, inconsistent rotation must never be
// reported anywhere.
package rotation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/inject"
	"github.com/pkonomy/sellerflow/internal/locate"
	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/platform"
	"github.com/pkonomy/sellerflow/internal/smsapi"
)

// cyclicSymbols is the ordered symbol set the suffix substitution walks.
var cyclicSymbols = []rune{'!', '@', '#', '$', '%', '^', '&', '*'}

// DeriveSecret produces the rotated secret. When the old secret ends in one
// of the cyclic symbols, that symbol advances to the next one (wrapping);
// otherwise the last character is replaced by the first symbol. One full
// cycle returns to the starting symbol.
func DeriveSecret(old string) string {
	runes := []rune(old)
	if len(runes) == 0 {
		return string(cyclicSymbols[0])
	}

	last := runes[len(runes)-1]
	next := cyclicSymbols[0]
	for i, sym := range cyclicSymbols {
		if sym == last {
			next = cyclicSymbols[(i+1)%len(cyclicSymbols)]
			break
		}
	}
	return string(runes[:len(runes)-1]) + string(next)
}

// Result is the terminal state of one rotation attempt.
type Result int

const (
	// Skipped means the portal's defer control was clicked; no rotation
	// happened.
	Skipped Result = iota
	// Rotated means the secret was changed, reported, and adopted.
	Rotated
	// Aborted means required fields or controls were missing; nothing was
	// mutated and nothing was reported.
	Aborted
)

func (r Result) String() string {
	switch r {
	case Skipped:
		return "skipped"
	case Rotated:
		return "rotated"
	default:
		return "aborted"
	}
}

// CredentialStore is the slice of the external store the handler reports to.
type CredentialStore interface {
	UpdatePassword(ctx context.Context, req smsapi.UpdatePasswordRequest) error
}

// SessionStore is the slice of the session context the handler mutates.
type SessionStore interface {
	ClearPending(ctx context.Context) error
	UpdatePendingSecret(ctx context.Context, secret string) error
}

// Handler drives one forced-rotation page.
type Handler struct {
	adapter  page.Adapter
	locator  *locate.Locator
	injector *inject.Injector
	creds    CredentialStore
	session  SessionStore
	logger   *zap.Logger
}

func New(adapter page.Adapter, locator *locate.Locator, injector *inject.Injector,
	creds CredentialStore, session SessionStore, logger *zap.Logger) *Handler {
	return &Handler{
		adapter:  adapter,
		locator:  locator,
		injector: injector,
		creds:    creds,
		session:  session,
		logger:   logger.Named("rotation"),
	}
}

// Handle processes a forced-rotation page for the pending request.
func (h *Handler) Handle(ctx context.Context, req *schemas.LoginRequest) (Result, error) {
	// A defer control beats completing the rotation.
	if ctl := h.findByLabel(ctx, platform.SkipRotationLabels()); ctl != nil {
		h.logger.Info("Deferring forced password change.", zap.String("label", ctl.Label))
		if err := h.adapter.Click(ctx, ctl.Handle); err != nil {
			return Aborted, fmt.Errorf("clicking defer control: %w", err)
		}
		if err := h.session.ClearPending(ctx); err != nil {
			h.logger.Warn("Could not clear pending request after deferral.", zap.Error(err))
		}
		return Skipped, nil
	}

	current, err := h.locator.First(ctx, platform.CurrentSecretStrategies())
	if err != nil {
		h.logger.Warn("Current-password field not found; aborting rotation untouched.")
		return Aborted, nil
	}
	first, err := h.locator.First(ctx, platform.NewSecretStrategies(0))
	if err != nil {
		h.logger.Warn("New-password field not found; aborting rotation untouched.")
		return Aborted, nil
	}
	second, err := h.locator.First(ctx, platform.NewSecretStrategies(1))
	if err != nil {
		h.logger.Warn("New-password confirmation field not found; aborting rotation untouched.")
		return Aborted, nil
	}

	newSecret := DeriveSecret(req.Secret)

	if err := h.injector.Fill(ctx, current, req.Secret); err != nil {
		return Aborted, fmt.Errorf("filling current password: %w", err)
	}
	if err := h.injector.Fill(ctx, first, newSecret); err != nil {
		return Aborted, fmt.Errorf("filling new password: %w", err)
	}
	if err := h.injector.Fill(ctx, second, newSecret); err != nil {
		return Aborted, fmt.Errorf("filling new password confirmation: %w", err)
	}

	ctl := h.findByLabel(ctx, platform.ConfirmRotationLabels())
	if ctl == nil {
		h.logger.Warn("No confirm control on rotation page; nothing submitted or reported.")
		return Aborted, nil
	}
	if err := h.adapter.Click(ctx, ctl.Handle); err != nil {
		return Aborted, fmt.Errorf("clicking rotation confirm: %w", err)
	}

	// Report first, adopt second. If the store refuses the update, the old
	// secret stays authoritative locally and the mismatch is surfaced.
	if err := h.creds.UpdatePassword(ctx, smsapi.UpdatePasswordRequest{
		Platform:    req.Platform,
		LoginID:     req.Identifier,
		NewPassword: newSecret,
	}); err != nil {
		return Aborted, fmt.Errorf("reporting rotated secret: %w", err)
	}
	if err := h.session.UpdatePendingSecret(ctx, newSecret); err != nil {
		h.logger.Warn("Rotated secret reported but local adoption failed.", zap.Error(err))
	}

	h.logger.Info("Password rotated and reported.", zap.String("platform", string(req.Platform)))
	return Rotated, nil
}

// findByLabel returns the first control whose label contains any of the
// given fragments.
func (h *Handler) findByLabel(ctx context.Context, labels []string) *page.Control {
	controls, err := h.adapter.Controls(ctx)
	if err != nil {
		h.logger.Debug("Could not enumerate controls.", zap.Error(err))
		return nil
	}
	for i := range controls {
		label := strings.TrimSpace(controls[i].Label)
		for _, want := range labels {
			if strings.Contains(label, want) {
				return &controls[i]
			}
		}
	}
	return nil
}
