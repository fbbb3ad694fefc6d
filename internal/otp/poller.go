// internal/otp/poller.go

// Package otp races the second-factor page against the external code
// delivery channel: a bounded periodic poll of the code source, a staleness
// filter keyed on the session start marker, and paced entry of the winning
// code into the page.
package otp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/confirm"
	"github.com/pkonomy/sellerflow/internal/inject"
	"github.com/pkonomy/sellerflow/internal/locate"
	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/platform"
	"github.com/pkonomy/sellerflow/internal/poll"
	"github.com/pkonomy/sellerflow/internal/smsapi"
)

// State is the poller's lifecycle position.
type State int

const (
	Idle State = iota
	Polling
	Resolved
	TimedOut
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	default:
		return "idle"
	}
}

const (
	// DefaultInterval is the code-source query period.
	DefaultInterval = time.Second
	// DefaultMaxAttempts bounds the poll; profiles may override it.
	DefaultMaxAttempts = 30
)

// StatusSource is the slice of the code-source client the poller needs.
type StatusSource interface {
	AuthCodeStatus(ctx context.Context) (map[string]smsapi.AuthCode, error)
}

// Poller drives one second-factor page to completion.
type Poller struct {
	source   StatusSource
	adapter  page.Adapter
	locator  *locate.Locator
	injector *inject.Injector
	logger   *zap.Logger

	interval    time.Duration
	maxAttempts int

	mu       sync.Mutex
	state    State
	seq      int
	lastCode map[string]string
	seqBySrc map[string]int
}

// New creates a Poller with the default interval and ceiling.
func New(source StatusSource, adapter page.Adapter, locator *locate.Locator, injector *inject.Injector, logger *zap.Logger) *Poller {
	return &Poller{
		source:      source,
		adapter:     adapter,
		locator:     locator,
		injector:    injector,
		logger:      logger.Named("otp"),
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		lastCode:    make(map[string]string),
		seqBySrc:    make(map[string]int),
	}
}

// WithInterval overrides the poll interval. Used by tests.
func (p *Poller) WithInterval(d time.Duration) *Poller {
	p.interval = d
	return p
}

// State returns the poller's current lifecycle position.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run polls the code source until a code valid for the attempt that began
// at marker arrives, then enters it and clicks the resolved confirm
// control. The poll stops the instant a terminal state is reached; there is
// no path on which two pollers survive for one page load.
//
// Timing out is terminal and silent: the page is left as-is for the
// operator, and no error propagates.
func (p *Poller) Run(ctx context.Context, prof *platform.Profile, marker time.Time) State {
	p.setState(Polling)

	attempts := p.maxAttempts
	if prof != nil && prof.OTPMaxAttempts > 0 {
		attempts = prof.OTPMaxAttempts
	}
	p.logger.Info("Waiting for one-time code.",
		zap.Time("marker", marker), zap.Int("max_attempts", attempts))

	var code string
	outcome := poll.Until(ctx, p.interval, attempts, func(ctx context.Context, attempt int) bool {
		selected := p.pollOnce(ctx, marker)
		if selected == nil {
			p.logger.Debug("No valid code yet.", zap.Int("attempt", attempt), zap.Int("max", attempts))
			return false
		}
		code = selected.Code
		p.logger.Info("Valid code arrived.",
			zap.String("source", selected.SourceID),
			zap.String("delivered_at", selected.DeliveredAt))
		return true
	})

	switch outcome {
	case poll.Resolved:
		if err := p.EnterCode(ctx, prof, code); err != nil {
			p.logger.Warn("Code arrived but could not be entered.", zap.Error(err))
		}
		p.setState(Resolved)
		return Resolved
	case poll.Canceled:
		p.setState(TimedOut)
		return TimedOut
	default:
		p.logger.Warn("No code arrived within the attempt ceiling; manual intervention required.")
		p.setState(TimedOut)
		return TimedOut
	}
}

// EnterCode types the code into the second-factor input and clicks the
// resolved confirm control. It is the single entry path shared by automatic
// polling and manual operator input.
func (p *Poller) EnterCode(ctx context.Context, prof *platform.Profile, code string) error {
	field, err := p.locator.Wait(ctx, platform.CodeStrategies())
	if err != nil {
		return fmt.Errorf("locating code input: %w", err)
	}
	if err := p.injector.TypeSlow(ctx, field, code); err != nil {
		return fmt.Errorf("typing code: %w", err)
	}

	controls, err := p.adapter.Controls(ctx)
	if err != nil {
		return fmt.Errorf("enumerating controls: %w", err)
	}
	loginKeyword := ""
	if prof != nil {
		loginKeyword = prof.LoginKeyword
	}
	ctl := confirm.Resolve(controls, loginKeyword)
	if ctl == nil {
		return fmt.Errorf("resolving confirm control: %w", page.ErrNotFound)
	}
	if err := p.adapter.Click(ctx, ctl.Handle); err != nil {
		return fmt.Errorf("clicking confirm control: %w", err)
	}
	p.logger.Info("Code entered and confirmed.", zap.String("confirm_label", ctl.Label))
	return nil
}

// pollOnce queries the source and applies the selection rule. A failed
// round trip spends the attempt and yields nothing; the next tick retries.
func (p *Poller) pollOnce(ctx context.Context, marker time.Time) *schemas.AuthCodeRecord {
	status, err := p.source.AuthCodeStatus(ctx)
	if err != nil {
		p.logger.Debug("Code source unavailable; retrying next tick.", zap.Error(err))
		return nil
	}
	records := p.toRecords(status)
	return Select(records, marker, time.Now())
}

// toRecords converts a status snapshot into ordered records, assigning
// client-side sequence numbers: the wire carries no ordering, so a source's
// sequence is bumped from a shared counter whenever its reported code
// changes.
func (p *Poller) toRecords(status map[string]smsapi.AuthCode) []schemas.AuthCodeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := make([]schemas.AuthCodeRecord, 0, len(status))
	for source, ac := range status {
		code := ""
		if ac.Code != nil {
			code = *ac.Code
		}
		if p.lastCode[source] != code {
			p.lastCode[source] = code
			p.seq++
			p.seqBySrc[source] = p.seq
		}
		deliveredAt := ""
		if ac.Time != nil {
			deliveredAt = *ac.Time
		}
		records = append(records, schemas.AuthCodeRecord{
			SourceID:    source,
			Code:        code,
			DeliveredAt: deliveredAt,
			Sequence:    p.seqBySrc[source],
		})
	}
	return records
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
