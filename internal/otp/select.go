// internal/otp/select.go
package otp

import (
	"regexp"
	"time"

	"github.com/pkonomy/sellerflow/api/schemas"
)

// codePattern accepts the 4-6 digit codes the portals issue.
var codePattern = regexp.MustCompile(`^\d{4,6}$`)

// Select picks the one code usable for the current login attempt, or nil.
//
// Filter: the "no code yet" sentinel and anything that is not a 4-6 digit
// code are discarded; a record whose delivery time, interpreted against
// now's calendar date, is strictly before marker is a leftover from a
// previous, unrelated login and is discarded regardless of how
// well-formed it is.
//
// Rank: most recent delivery time wins, ties broken by highest sequence
// number. Records without a delivery time cannot be ordered and are trusted
// only as a last resort, after every timestamped candidate is exhausted.
func Select(records []schemas.AuthCodeRecord, marker, now time.Time) *schemas.AuthCodeRecord {
	var best *schemas.AuthCodeRecord
	var bestAt time.Time
	var fallback *schemas.AuthCodeRecord

	for i := range records {
		r := &records[i]
		if r.Code == "" || r.Code == schemas.AuthCodeSentinel || !codePattern.MatchString(r.Code) {
			continue
		}

		at, ok := deliveryTime(r.DeliveredAt, now)
		if !ok {
			if fallback == nil || r.Sequence > fallback.Sequence {
				fallback = r
			}
			continue
		}
		if at.Before(marker) {
			continue
		}
		if best == nil || at.After(bestAt) || (at.Equal(bestAt) && r.Sequence > best.Sequence) {
			best = r
			bestAt = at
		}
	}

	if best != nil {
		return best
	}
	return fallback
}

// deliveryTime interprets an "HH:MM:SS" wall-clock string against now's
// calendar date. Malformed strings are treated as absent.
func deliveryTime(s string, now time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	clock, err := time.Parse("15:04:05", s)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location()), true
}
