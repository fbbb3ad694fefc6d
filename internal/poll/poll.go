// internal/poll/poll.go

// Package poll provides the single bounded-poll primitive shared by every
// waiting loop in the automation core. A loop is either resolved by its
// predicate, timed out by its attempt ceiling, or canceled by its context;
// there is no fourth way out.
package poll

import (
	"context"
	"time"
)

// Outcome is the terminal state of one bounded poll.
type Outcome int

const (
	Resolved Outcome = iota
	TimedOut
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	default:
		return "canceled"
	}
}

// Until invokes fn once immediately, then once per interval, until fn
// reports done, maxAttempts invocations have elapsed, or ctx is canceled.
// The attempt passed to fn is 1-based. The ticker is stopped the instant a
// terminal outcome is reached; fn is never invoked again afterward.
//
// fn is responsible for its own error handling: a failed probe (a lost HTTP
// round trip, a detached element) simply returns false and spends the
// attempt.
func Until(ctx context.Context, interval time.Duration, maxAttempts int, fn func(ctx context.Context, attempt int) bool) Outcome {
	if maxAttempts <= 0 {
		return TimedOut
	}

	if ctx.Err() != nil {
		return Canceled
	}
	if fn(ctx, 1) {
		return Resolved
	}
	if maxAttempts == 1 {
		return TimedOut
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 2; ; attempt++ {
		select {
		case <-ctx.Done():
			return Canceled
		case <-ticker.C:
			if fn(ctx, attempt) {
				return Resolved
			}
			if attempt >= maxAttempts {
				return TimedOut
			}
		}
	}
}
