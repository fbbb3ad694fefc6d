// internal/platform/platform.go

// Package platform holds the per-portal knowledge: which URLs belong to
// which flow, where the credential fields live, what the portal calls its
// login button. Everything brittle and portal-specific is concentrated here
// so a portal UI change touches one table.
package platform

import (
	"strings"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/page"
)

// Profile describes one seller portal.
type Profile struct {
	Platform schemas.Platform

	// LoginHosts are URL substrings identifying the portal's credential
	// entry pages.
	LoginHosts []string
	// LoginURL is where `run` navigates to start a flow.
	LoginURL string
	// SecondFactorHosts are URL substrings identifying dedicated
	// second-factor pages. These are handled even when no login request is
	// pending, since flows can be initiated outside the automation.
	SecondFactorHosts []string

	// Ordered locator strategies. First structural match wins.
	IdentifierStrategies []page.Strategy
	SecretStrategies     []page.Strategy

	// Submit resolution: selectors first, then exact label match against
	// SubmitLabels, then contains-match.
	SubmitSelectors []page.Strategy
	SubmitLabels    []string

	// LoginKeyword is the label fragment that marks a control as the
	// portal's primary login action. The confirm resolver excludes any
	// control carrying it.
	LoginKeyword string

	// TabSelector, when set, is clicked before credential entry (the ESM
	// sign-in page multiplexes marketplaces behind tabs).
	TabSelector string
	// MasterTabSelector is the unified-account tab used when the request
	// carries master credentials.
	MasterTabSelector string

	// OTPMaxAttempts overrides the default second-factor attempt ceiling.
	OTPMaxAttempts int
}

// MatchesLoginURL reports whether url is one of this portal's credential
// entry pages.
func (p *Profile) MatchesLoginURL(url string) bool {
	for _, h := range p.LoginHosts {
		if strings.Contains(url, h) {
			return true
		}
	}
	return false
}

// MatchesSecondFactorURL reports whether url is a dedicated second-factor
// page of this portal.
func (p *Profile) MatchesSecondFactorURL(url string) bool {
	for _, h := range p.SecondFactorHosts {
		if strings.Contains(url, h) {
			return true
		}
	}
	return false
}

const esmTabESM = `button[data-montelena-acode='700000273']`

var profiles = map[schemas.Platform]*Profile{
	schemas.PlatformSmartStore: {
		Platform:   schemas.PlatformSmartStore,
		LoginHosts: []string{"accounts.commerce.naver.com", "nid.naver.com", "commerce.naver.com"},
		LoginURL:   "https://accounts.commerce.naver.com/login",
		IdentifierStrategies: []page.Strategy{
			{Query: `input[id="id"], input[name="id"]`},
			{Query: `input[type="text"]`},
		},
		SecretStrategies: []page.Strategy{
			{Query: `input[id="pw"], input[name="pw"]`},
			{Query: `input[type="password"]`},
		},
		// The Naver login page also renders a passkey button whose label
		// contains the login word; only the exact label is the real submit.
		SubmitLabels: []string{"로그인"},
		LoginKeyword: "로그인",
	},
	schemas.PlatformCoupang: {
		Platform:   schemas.PlatformCoupang,
		LoginHosts: []string{"xauth.coupang.com", "wing.coupang.com"},
		LoginURL:   "https://xauth.coupang.com/auth/realms/seller/login",
		IdentifierStrategies: []page.Strategy{
			{Query: `input[name="username"], input[id="username"]`},
			{Query: `input[placeholder*="아이디"]`},
		},
		SecretStrategies: []page.Strategy{
			{Query: `input[name="password"], input[id="password"]`},
			{Query: `input[type="password"]`},
		},
		SubmitSelectors: []page.Strategy{
			{Query: `#kc-login`},
			{Query: `button[type="submit"]`},
			{Query: `.login-button`},
		},
		SubmitLabels: []string{"로그인", "Log In", "Sign In", "Login"},
		LoginKeyword: "로그인",
	},
	schemas.PlatformElevenst: {
		Platform:          schemas.PlatformElevenst,
		LoginHosts:        []string{"login.11st.co.kr"},
		LoginURL:          "https://login.11st.co.kr/auth/front/selleroffice/login.tmall",
		SecondFactorHosts: []string{"selleroffice.11st.co.kr", "soffice.11st.co.kr"},
		IdentifierStrategies: []page.Strategy{
			{Query: `input[id="loginName"], input[name="loginName"]`},
			{Query: `input[placeholder*="아이디"]`},
		},
		SecretStrategies: []page.Strategy{
			{Query: `input[id="passWord"], input[name="passWord"]`},
			{Query: `input[type="password"]`},
		},
		SubmitSelectors: []page.Strategy{
			{Query: `button.btn_login`},
			{Query: `button[type="submit"]`},
			{Query: `.login-btn`},
			{Query: `a.btn_login`},
		},
		SubmitLabels: []string{"로그인", "Login"},
		LoginKeyword: "로그인",
		// The seller office sends its codes slowly; give it a longer window.
		OTPMaxAttempts: 60,
	},
	schemas.PlatformESMPlus: {
		Platform:    schemas.PlatformESMPlus,
		LoginHosts:  []string{"signin.esmplus.com"},
		LoginURL:    "https://signin.esmplus.com/login",
		TabSelector: esmTabESM,
		IdentifierStrategies: []page.Strategy{
			{Query: `input[placeholder*="아이디"]`},
			{Query: `input[type="text"]:not([readonly])`},
		},
		SecretStrategies: []page.Strategy{
			{Query: `input[placeholder*="비밀번호"]`},
			{Query: `input[type="password"]`},
		},
		SubmitSelectors: []page.Strategy{
			{Query: `button[type="submit"]`},
		},
		SubmitLabels: []string{"로그인"},
		LoginKeyword: "로그인",
	},
	schemas.PlatformGmarket: {
		Platform:          schemas.PlatformGmarket,
		LoginHosts:        []string{"signin.esmplus.com"},
		LoginURL:          "https://signin.esmplus.com/login",
		TabSelector:       `button[data-montelena-acode='700000274']`,
		MasterTabSelector: esmTabESM,
		IdentifierStrategies: []page.Strategy{
			{Query: `input[placeholder*="아이디"]`},
			{Query: `input[type="text"]:not([readonly])`},
		},
		SecretStrategies: []page.Strategy{
			{Query: `input[placeholder*="비밀번호"]`},
			{Query: `input[type="password"]`},
		},
		SubmitSelectors: []page.Strategy{
			{Query: `button[type="submit"]`},
		},
		SubmitLabels: []string{"로그인"},
		LoginKeyword: "로그인",
	},
	schemas.PlatformAuction: {
		Platform:          schemas.PlatformAuction,
		LoginHosts:        []string{"signin.esmplus.com"},
		LoginURL:          "https://signin.esmplus.com/login",
		TabSelector:       `button[data-montelena-acode='700000275']`,
		MasterTabSelector: esmTabESM,
		IdentifierStrategies: []page.Strategy{
			{Query: `input[placeholder*="아이디"]`},
			{Query: `input[type="text"]:not([readonly])`},
		},
		SecretStrategies: []page.Strategy{
			{Query: `input[placeholder*="비밀번호"]`},
			{Query: `input[type="password"]`},
		},
		SubmitSelectors: []page.Strategy{
			{Query: `button[type="submit"]`},
		},
		SubmitLabels: []string{"로그인"},
		LoginKeyword: "로그인",
	},
}

// Lookup returns the profile for a platform.
func Lookup(p schemas.Platform) (*Profile, bool) {
	prof, ok := profiles[p]
	return prof, ok
}

// All returns every registered profile.
func All() []*Profile {
	out := make([]*Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	return out
}

// CodeStrategies is the shared ordered strategy list for locating a
// one-time-code input. Portals disagree wildly about how the field is
// marked up; the last resort is any visible, still-empty text input.
func CodeStrategies() []page.Strategy {
	return []page.Strategy{
		{Query: `input[placeholder*="인증"]`, VisibleOnly: true},
		{Query: `input[placeholder*="코드"]`, VisibleOnly: true},
		{Query: `input[placeholder*="번호"]`, VisibleOnly: true},
		{Query: `input[name*="otp"], input[id*="otp"]`, VisibleOnly: true},
		{Query: `input[name*="auth"], input[id*="auth"]`, VisibleOnly: true},
		{Query: `input[name*="certNo"], input[id*="certNo"]`, VisibleOnly: true},
		{Query: `input#authNo`, VisibleOnly: true},
		{Query: `input[maxlength="6"], input[maxlength="4"]`, VisibleOnly: true},
		{Query: `input[type="tel"]`, VisibleOnly: true},
		{Query: `input[type="text"], input[type="tel"], input:not([type])`, VisibleOnly: true, EmptyOnly: true},
	}
}

// CurrentSecretStrategies locates the current-password field on a forced
// rotation page.
func CurrentSecretStrategies() []page.Strategy {
	return []page.Strategy{
		{Query: `input[placeholder*="현재"], input[placeholder*="기존"]`},
		{Query: `input[name*="current"], input[name*="old"]`},
		{Query: `input[id*="current"], input[id*="old"]`},
	}
}

// NewSecretStrategies locates the Nth new-password field (0-based) on a
// forced rotation page; the page carries the new value twice.
func NewSecretStrategies(index int) []page.Strategy {
	return []page.Strategy{
		{Query: `input[placeholder*="새"], input[placeholder*="신규"]`, Index: index},
		{Query: `input[name*="new"], input[id*="new"]`, Index: index},
		{Query: `input[type="password"]:not([name*="current"]):not([name*="old"])`, Index: index},
	}
}

// SkipRotationLabels are the labels of controls that defer a forced
// password change instead of completing it.
func SkipRotationLabels() []string {
	return []string{
		"30일 후에 변경", "다음에 변경", "나중에 변경",
		"다음에", "나중에", "건너뛰기", "Skip", "Later",
	}
}

// ConfirmRotationLabels are the labels of controls that commit a password
// change.
func ConfirmRotationLabels() []string {
	return []string{"확인", "변경", "저장", "다음", "완료"}
}
