// api/schemas/schemas.go
package schemas

import (
	"time"
)

// Platform identifies a seller portal the automation knows how to drive.
type Platform string

const (
	PlatformSmartStore Platform = "smartstore"
	PlatformCoupang    Platform = "coupang"
	PlatformElevenst   Platform = "11st"
	PlatformESMPlus    Platform = "esmplus"
	PlatformGmarket    Platform = "gmarket"
	PlatformAuction    Platform = "auction"
)

// Valid reports whether p names a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformSmartStore, PlatformCoupang, PlatformElevenst,
		PlatformESMPlus, PlatformGmarket, PlatformAuction:
		return true
	}
	return false
}

// LoginRequest is a pending automation instruction for one login attempt.
// It is written once by the caller, consumed once by whichever handler
// completes it, then cleared.
type LoginRequest struct {
	Platform   Platform `json:"platform" validate:"required"`
	Identifier string   `json:"login_id" validate:"required"`
	Secret     string   `json:"password" validate:"required"`

	// Master-account credentials for the unified ESM sign-in. When present,
	// marketplace-specific logins are performed through the master tab instead.
	AuxIdentifier string `json:"esm_master,omitempty"`
	AuxSecret     string `json:"esm_master_pw,omitempty"`
}

// PageState is the classification of one loaded page. It is recomputed on
// every navigation and never persisted.
type PageState int

const (
	PageUnclassified PageState = iota
	PageCredentialEntry
	PageSecondFactor
	PageSecretRotation
)

func (s PageState) String() string {
	switch s {
	case PageCredentialEntry:
		return "credential_entry"
	case PageSecondFactor:
		return "second_factor"
	case PageSecretRotation:
		return "secret_rotation"
	default:
		return "unclassified"
	}
}

// AuthCodeSentinel is the placeholder the code source reports while a phone
// profile has not yet received anything. It must never be selected.
const AuthCodeSentinel = "------"

// AuthCodeRecord is one phone profile's view of the most recent one-time
// code. DeliveredAt is a wall-clock "HH:MM:SS" string interpreted against
// the current calendar date; it is empty when the source cannot report a
// delivery time. Sequence is assigned client side, monotonically, whenever a
// source's reported code changes; the wire format carries no ordering.
type AuthCodeRecord struct {
	SourceID    string `json:"source_id"`
	Code        string `json:"code"`
	DeliveredAt string `json:"time,omitempty"`
	Sequence    int    `json:"sequence"`
}

// FlowStatus is a progress event emitted by the flow orchestrator, streamed
// to any attached operator UI.
type FlowStatus struct {
	FlowID    string    `json:"flow_id"`
	Platform  Platform  `json:"platform,omitempty"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
