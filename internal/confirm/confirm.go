// internal/confirm/confirm.go

// Package confirm disambiguates "submit the verification code" controls
// from "submit the login" controls on second-factor pages. Picking the
// wrong one re-fires the primary login and burns the code, so any control
// labeled with the portal's login keyword is excluded outright, even when
// it is the only candidate.
package confirm

import (
	"strings"

	"github.com/pkonomy/sellerflow/internal/page"
)

// canonicalLabels are exact confirm labels, ranked above looser matches.
var canonicalLabels = []string{
	"확인", "인증", "인증하기", "완료", "다음",
	"confirm", "verify", "complete",
}

// containsLabels are the loose second-tier matches.
var containsLabels = []string{"확인", "confirm"}

// primaryClassMarkers identify visually-primary controls used as the last
// resort.
var primaryClassMarkers = []string{"btn_red", "btn_primary", "confirm", "submit"}

// Resolve returns the confirm control for a second-factor page, or nil when
// none qualifies. loginKeyword is the portal's primary-login label fragment.
func Resolve(controls []page.Control, loginKeyword string) *page.Control {
	candidates := make([]page.Control, 0, len(controls))
	for _, c := range controls {
		if loginKeyword != "" && strings.Contains(c.Label, loginKeyword) {
			continue
		}
		candidates = append(candidates, c)
	}

	// Tier 1: exact canonical label.
	for i := range candidates {
		label := strings.TrimSpace(candidates[i].Label)
		for _, want := range canonicalLabels {
			if strings.EqualFold(label, want) {
				return &candidates[i]
			}
		}
	}

	// Tier 2: label contains a confirm word.
	for i := range candidates {
		for _, want := range containsLabels {
			if strings.Contains(strings.ToLower(candidates[i].Label), strings.ToLower(want)) {
				return &candidates[i]
			}
		}
	}

	// Tier 3: visually-primary control whose label contains any confirm
	// word, not just the strict ones.
	for i := range candidates {
		if !hasPrimaryClass(candidates[i].Class) {
			continue
		}
		label := strings.ToLower(candidates[i].Label)
		for _, want := range canonicalLabels {
			if strings.Contains(label, strings.ToLower(want)) {
				return &candidates[i]
			}
		}
	}

	return nil
}

func hasPrimaryClass(class string) bool {
	lower := strings.ToLower(class)
	for _, marker := range primaryClassMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
