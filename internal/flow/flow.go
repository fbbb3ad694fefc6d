// internal/flow/flow.go

// Package flow orchestrates one automation pass per page load: capture the
// session start marker, classify the page, and dispatch to credential
// entry, second-factor handling, or secret rotation. Nothing here throws
// upward into the hosting page's world; a failed step logs, stops, and
// leaves the page to the operator.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/classify"
	"github.com/pkonomy/sellerflow/internal/inject"
	"github.com/pkonomy/sellerflow/internal/locate"
	"github.com/pkonomy/sellerflow/internal/otp"
	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/platform"
	"github.com/pkonomy/sellerflow/internal/rotation"
	"github.com/pkonomy/sellerflow/internal/submit"
)

const (
	// defaultSettleDelay lets a freshly loaded page finish rendering before
	// anything is classified.
	defaultSettleDelay = 1500 * time.Millisecond
	// defaultRecheckDelay is how long after a submission or rotation the
	// page is re-examined for a second-factor prompt.
	defaultRecheckDelay = 3 * time.Second
	// interFieldDelay separates the identifier and secret injections.
	interFieldDelay = 300 * time.Millisecond
	// preSubmitDelay lets field validation settle before submission fires.
	preSubmitDelay = 500 * time.Millisecond
)

// SessionStore is the session-context surface the flow consumes.
type SessionStore interface {
	Pending(ctx context.Context) (*schemas.LoginRequest, error)
	ClearPending(ctx context.Context) error
	UpdatePendingSecret(ctx context.Context, secret string) error
}

// Deps wires a Flow. Codes and Creds are the external collaborators; the
// rest of the machinery is built on the adapter.
type Deps struct {
	Adapter page.Adapter
	Session SessionStore
	Codes   otp.StatusSource
	Creds   rotation.CredentialStore
	Logger  *zap.Logger

	// OnStatus, when set, receives progress events for any attached
	// operator UI.
	OnStatus func(schemas.FlowStatus)

	// Test knobs; zero means the production default.
	SettleDelay  time.Duration
	RecheckDelay time.Duration
	PollInterval time.Duration
	LocateWait   time.Duration
	LocateStep   time.Duration
}

// Flow runs the automation for one tab.
type Flow struct {
	id       string
	adapter  page.Adapter
	session  SessionStore
	locator  *locate.Locator
	injector *inject.Injector
	trigger  *submit.Trigger
	poller   *otp.Poller
	rotator  *rotation.Handler
	logger   *zap.Logger
	onStatus func(schemas.FlowStatus)

	settleDelay  time.Duration
	recheckDelay time.Duration
}

// New builds a Flow from its dependencies.
func New(deps Deps) *Flow {
	id := uuid.New().String()
	logger := deps.Logger.Named("flow").With(zap.String("flow_id", id))

	locator := locate.New(deps.Adapter, logger)
	if deps.LocateWait > 0 {
		locator = locator.WithWait(deps.LocateWait, deps.LocateStep)
	}
	injector := inject.New(deps.Adapter, logger)
	poller := otp.New(deps.Codes, deps.Adapter, locator, injector, logger)
	if deps.PollInterval > 0 {
		poller = poller.WithInterval(deps.PollInterval)
	}

	f := &Flow{
		id:           id,
		adapter:      deps.Adapter,
		session:      deps.Session,
		locator:      locator,
		injector:     injector,
		trigger:      submit.New(deps.Adapter, locator, logger),
		poller:       poller,
		rotator:      rotation.New(deps.Adapter, locator, injector, deps.Creds, deps.Session, logger),
		logger:       logger,
		onStatus:     deps.OnStatus,
		settleDelay:  defaultSettleDelay,
		recheckDelay: defaultRecheckDelay,
	}
	if deps.SettleDelay > 0 {
		f.settleDelay = deps.SettleDelay
	}
	if deps.RecheckDelay > 0 {
		f.recheckDelay = deps.RecheckDelay
	}
	return f
}

// ID returns the flow's identifier.
func (f *Flow) ID() string { return f.id }

// Run executes one automation pass for the currently loaded page. The
// marker captured here separates codes for this attempt from leftovers of
// earlier ones. Run never returns an error for a page it simply cannot act
// on; it returns one only when the environment itself failed.
func (f *Flow) Run(ctx context.Context) error {
	marker := time.Now()

	url, err := f.adapter.URL(ctx)
	if err != nil {
		return fmt.Errorf("reading page URL: %w", err)
	}
	f.logger.Info("Automation pass started.", zap.String("url", url))

	// Dedicated second-factor pages are handled even with no pending
	// request; those flows may have been started outside the automation.
	for _, prof := range platform.All() {
		if prof.MatchesSecondFactorURL(url) {
			f.emit(prof.Platform, "second_factor", "dedicated second-factor page")
			f.runSecondFactor(ctx, prof, marker)
			return nil
		}
	}

	pending, err := f.session.Pending(ctx)
	if err != nil {
		return fmt.Errorf("reading pending request: %w", err)
	}
	if pending == nil {
		f.logger.Debug("No pending login; nothing to do.")
		return nil
	}

	prof, ok := platform.Lookup(pending.Platform)
	if !ok {
		f.logger.Warn("Pending request names an unknown platform.",
			zap.String("platform", string(pending.Platform)))
		return nil
	}

	// Let the page render before classifying it.
	if err := sleep(ctx, f.settleDelay); err != nil {
		return err
	}

	state, err := f.classifyPage(ctx, url, prof, true)
	if err != nil {
		return err
	}
	f.logger.Info("Page classified.", zap.Stringer("state", state))
	f.emit(prof.Platform, state.String(), url)

	switch state {
	case schemas.PageSecretRotation:
		f.runRotation(ctx, prof, pending, marker)
	case schemas.PageSecondFactor:
		f.runSecondFactor(ctx, prof, marker)
	case schemas.PageCredentialEntry:
		f.runCredentialEntry(ctx, prof, pending, marker)
	default:
		// A portal UI change can silently land here; the operator takes
		// over by hand, so this is a log line, not a failure.
		f.logger.Info("Page not recognized; leaving it to the operator.", zap.String("url", url))
	}
	return nil
}

// InputCode is the manual entry path: an operator-supplied code goes
// through exactly the same injection and confirm resolution as an
// automatically polled one.
func (f *Flow) InputCode(ctx context.Context, code string) error {
	var prof *platform.Profile
	if pending, err := f.session.Pending(ctx); err == nil && pending != nil {
		prof, _ = platform.Lookup(pending.Platform)
	}
	if prof == nil {
		if url, err := f.adapter.URL(ctx); err == nil {
			for _, p := range platform.All() {
				if p.MatchesSecondFactorURL(url) || p.MatchesLoginURL(url) {
					prof = p
					break
				}
			}
		}
	}

	if err := f.poller.EnterCode(ctx, prof, code); err != nil {
		return err
	}
	if err := f.session.ClearPending(ctx); err != nil {
		f.logger.Warn("Could not clear pending request after manual code entry.", zap.Error(err))
	}
	f.emit("", "manual_code_entered", "")
	return nil
}

// runCredentialEntry fills and submits the login form.
func (f *Flow) runCredentialEntry(ctx context.Context, prof *platform.Profile, req *schemas.LoginRequest, marker time.Time) {
	identifier, secret := req.Identifier, req.Secret

	// The ESM sign-in page multiplexes marketplaces behind tabs; pick ours
	// before the fields exist. With master credentials present, the unified
	// tab and the master account take over.
	tabSelector := prof.TabSelector
	if req.AuxIdentifier != "" && req.AuxSecret != "" && prof.MasterTabSelector != "" {
		tabSelector = prof.MasterTabSelector
		identifier, secret = req.AuxIdentifier, req.AuxSecret
	}
	if tabSelector != "" {
		if h, err := f.adapter.Locate(ctx, page.Strategy{Query: tabSelector}); err == nil {
			if err := f.adapter.Click(ctx, h); err != nil {
				f.logger.Debug("Marketplace tab click failed.", zap.Error(err))
			}
			if err := sleep(ctx, f.settleDelay); err != nil {
				return
			}
		}
	}

	idField, err := f.locator.Wait(ctx, prof.IdentifierStrategies)
	if err != nil {
		f.logger.Warn("Identifier field not found; aborting this pass.", zap.Error(err))
		return
	}
	secretField, err := f.locator.First(ctx, prof.SecretStrategies)
	if err != nil {
		f.logger.Warn("Secret field not found; aborting this pass.", zap.Error(err))
		return
	}

	if err := f.injector.Fill(ctx, idField, identifier); err != nil {
		f.logger.Warn("Identifier injection failed.", zap.Error(err))
		return
	}
	if err := sleep(ctx, interFieldDelay); err != nil {
		return
	}
	if err := f.injector.Fill(ctx, secretField, secret); err != nil {
		f.logger.Warn("Secret injection failed.", zap.Error(err))
		return
	}
	if err := sleep(ctx, preSubmitDelay); err != nil {
		return
	}

	if err := f.trigger.Submit(ctx, prof, secretField); err != nil {
		f.logger.Warn("Submission failed.", zap.Error(err))
		return
	}
	f.emit(prof.Platform, "submitted", "")

	// The submission consumed the request.
	if err := f.session.ClearPending(ctx); err != nil {
		f.logger.Warn("Could not clear pending request after submission.", zap.Error(err))
	}

	f.recheckSecondFactor(ctx, prof, marker)
}

// runSecondFactor hands the page to the OTP poller.
func (f *Flow) runSecondFactor(ctx context.Context, prof *platform.Profile, marker time.Time) {
	state := f.poller.Run(ctx, prof, marker)
	f.emit(prof.Platform, "otp_"+state.String(), "")
	if state == otp.Resolved {
		if err := f.session.ClearPending(ctx); err != nil {
			f.logger.Warn("Could not clear pending request after second factor.", zap.Error(err))
		}
	}
}

// runRotation hands the page to the rotation handler, then re-checks for a
// trailing second-factor prompt.
func (f *Flow) runRotation(ctx context.Context, prof *platform.Profile, req *schemas.LoginRequest, marker time.Time) {
	result, err := f.rotator.Handle(ctx, req)
	if err != nil {
		f.logger.Warn("Rotation handling failed.", zap.Error(err))
	}
	f.emit(prof.Platform, "rotation_"+result.String(), "")
	if result == rotation.Rotated {
		f.recheckSecondFactor(ctx, prof, marker)
	}
}

// recheckSecondFactor waits out the navigation settle and examines the page
// once more; portals frequently chain a second-factor prompt directly after
// a successful submission or rotation.
func (f *Flow) recheckSecondFactor(ctx context.Context, prof *platform.Profile, marker time.Time) {
	if err := sleep(ctx, f.recheckDelay); err != nil {
		return
	}
	url, err := f.adapter.URL(ctx)
	if err != nil {
		return
	}
	state, err := f.classifyPage(ctx, url, prof, false)
	if err != nil || state != schemas.PageSecondFactor {
		return
	}
	f.logger.Info("Second-factor prompt appeared after submission.")
	f.emit(prof.Platform, "second_factor", "post-submit")
	f.runSecondFactor(ctx, prof, marker)
}

func (f *Flow) classifyPage(ctx context.Context, url string, prof *platform.Profile, hasPending bool) (schemas.PageState, error) {
	text, err := f.adapter.ReadText(ctx)
	if err != nil {
		return schemas.PageUnclassified, fmt.Errorf("reading page text: %w", err)
	}
	markup, err := f.adapter.ReadMarkup(ctx)
	if err != nil {
		return schemas.PageUnclassified, fmt.Errorf("reading page markup: %w", err)
	}
	return classify.Page(classify.Input{
		URL:        url,
		Text:       text,
		Markup:     markup,
		Profile:    prof,
		HasPending: hasPending,
	}), nil
}

func (f *Flow) emit(p schemas.Platform, state, detail string) {
	if f.onStatus == nil {
		return
	}
	f.onStatus(schemas.FlowStatus{
		FlowID:    f.id,
		Platform:  p,
		State:     state,
		Detail:    detail,
		Timestamp: time.Now(),
	})
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
