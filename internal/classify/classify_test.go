// internal/classify/classify_test.go
package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/platform"
)

func profile(t *testing.T, p schemas.Platform) *platform.Profile {
	t.Helper()
	prof, ok := platform.Lookup(p)
	require.True(t, ok)
	return prof
}

func TestPage(t *testing.T) {
	smartstore := profile(t, schemas.PlatformSmartStore)
	elevenst := profile(t, schemas.PlatformElevenst)

	t.Run("second factor URL wins outright", func(t *testing.T) {
		// Even with rotation keywords on the page and no pending request.
		state := Page(Input{
			URL:     "https://selleroffice.11st.co.kr/auth",
			Text:    "비밀번호 변경 안내",
			Profile: elevenst,
		})
		assert.Equal(t, schemas.PageSecondFactor, state)
	})

	t.Run("rotation keywords beat second factor keywords", func(t *testing.T) {
		state := Page(Input{
			URL:        "https://accounts.commerce.naver.com/login",
			Text:       "새 비밀번호를 입력하세요. 인증번호 전송",
			Profile:    smartstore,
			HasPending: true,
		})
		assert.Equal(t, schemas.PageSecretRotation, state)
	})

	t.Run("second factor keywords in visible text", func(t *testing.T) {
		state := Page(Input{
			URL:        "https://wing.coupang.com/verify",
			Text:       "휴대폰으로 전송된 인증번호를 입력해 주세요",
			Profile:    profile(t, schemas.PlatformCoupang),
			HasPending: true,
		})
		assert.Equal(t, schemas.PageSecondFactor, state)
	})

	t.Run("keywords found in markup case-insensitively", func(t *testing.T) {
		state := Page(Input{
			URL:     "https://example.com/",
			Markup:  `<div class="otp-box">otp input</div>`,
			Profile: smartstore,
		})
		assert.Equal(t, schemas.PageSecondFactor, state)
	})

	t.Run("credential entry needs both URL and pending request", func(t *testing.T) {
		in := Input{
			URL:        "https://accounts.commerce.naver.com/login",
			Text:       "네이버 커머스 계정으로 로그인",
			Profile:    smartstore,
			HasPending: true,
		}
		assert.Equal(t, schemas.PageCredentialEntry, Page(in))

		in.HasPending = false
		assert.Equal(t, schemas.PageUnclassified, Page(in))

		in.HasPending = true
		in.URL = "https://smartstore.naver.com/dashboard"
		assert.Equal(t, schemas.PageUnclassified, Page(in))
	})

	t.Run("nil profile never panics", func(t *testing.T) {
		state := Page(Input{URL: "https://example.com", Text: "hello", HasPending: true})
		assert.Equal(t, schemas.PageUnclassified, state)
	})

	t.Run("plain page is unclassified", func(t *testing.T) {
		state := Page(Input{
			URL:     "https://smartstore.naver.com/products",
			Text:    "상품 관리",
			Profile: smartstore,
		})
		assert.Equal(t, schemas.PageUnclassified, state)
	})
}

func TestPageIsPure(t *testing.T) {
	in := Input{
		URL:        "https://accounts.commerce.naver.com/login",
		Text:       "로그인",
		Profile:    profile(t, schemas.PlatformSmartStore),
		HasPending: true,
	}
	first := Page(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Page(in))
	}
}
