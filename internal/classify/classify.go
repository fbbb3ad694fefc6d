// internal/classify/classify.go

// Package classify decides what kind of page the automation is looking at.
// Classification is pure: URL plus page text in, one PageState out, no side
// effects. The keyword tables are locale- and portal-coupled by nature and
// deliberately live nowhere else; when a portal redesign silently moves a
// page into Unclassified, this is the only package to touch.
package classify

import (
	"strings"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/platform"
)

// rotationKeywords mark a forced password-change interstitial.
var rotationKeywords = []string{
	"비밀번호 변경", "비밀번호를 변경", "비밀번호 재설정",
	"새 비밀번호", "새로운 비밀번호", "password change",
	"현재 비밀번호", "기존 비밀번호",
}

// secondFactorKeywords mark a one-time-code entry page.
var secondFactorKeywords = []string{
	"인증번호", "인증코드", "본인확인", "2단계",
	"보안인증", "OTP", "문자인증", "SMS 인증",
	"인증번호 전송", "인증번호를 입력",
}

// Input is everything classification may look at.
type Input struct {
	URL        string
	Text       string // visible page text
	Markup     string // raw document markup
	Profile    *platform.Profile
	HasPending bool
}

// Page classifies one loaded page. Rules apply in strict priority order:
//
//  1. a known second-factor URL wins outright, pending request or not;
//  2. rotation keywords;
//  3. second-factor keywords;
//  4. the portal's credential-entry URL, but only with a pending request;
//  5. otherwise Unclassified.
func Page(in Input) schemas.PageState {
	if in.Profile != nil && in.Profile.MatchesSecondFactorURL(in.URL) {
		return schemas.PageSecondFactor
	}
	if containsAny(in.Text, in.Markup, rotationKeywords) {
		return schemas.PageSecretRotation
	}
	if containsAny(in.Text, in.Markup, secondFactorKeywords) {
		return schemas.PageSecondFactor
	}
	if in.HasPending && in.Profile != nil && in.Profile.MatchesLoginURL(in.URL) {
		return schemas.PageCredentialEntry
	}
	return schemas.PageUnclassified
}

func containsAny(text, markup string, keywords []string) bool {
	lowerMarkup := strings.ToLower(markup)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
		if strings.Contains(lowerMarkup, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
