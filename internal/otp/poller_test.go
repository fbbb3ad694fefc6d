// internal/otp/poller_test.go
package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/api/schemas"
	"github.com/pkonomy/sellerflow/internal/inject"
	"github.com/pkonomy/sellerflow/internal/locate"
	"github.com/pkonomy/sellerflow/internal/page/pagetest"
	"github.com/pkonomy/sellerflow/internal/platform"
	"github.com/pkonomy/sellerflow/internal/smsapi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedSource returns one prepared snapshot per call, repeating the last
// one once the script runs out.
type scriptedSource struct {
	mu        sync.Mutex
	snapshots []map[string]smsapi.AuthCode
	errs      []error
	calls     int
}

func (s *scriptedSource) AuthCodeStatus(context.Context) (map[string]smsapi.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.snapshots) == 0 {
		return map[string]smsapi.AuthCode{}, nil
	}
	if i >= len(s.snapshots) {
		i = len(s.snapshots) - 1
	}
	return s.snapshots[i], nil
}

func snapshot(entries map[string][2]string) map[string]smsapi.AuthCode {
	out := make(map[string]smsapi.AuthCode, len(entries))
	for source, pair := range entries {
		code, clock := pair[0], pair[1]
		ac := smsapi.AuthCode{Code: &code}
		if clock != "" {
			c := clock
			ac.Time = &c
		}
		out[source] = ac
	}
	return out
}

// codePage is a fake second-factor page with a code input and a confirm
// button.
func codePage() *pagetest.Fake {
	fake := pagetest.New()
	fake.AddElement("code-input", nil)
	fake.MapSelector(`input[placeholder*="인증"]`, "code-input")
	fake.AddControl("confirm", "확인", "btn_red", "button")
	fake.AddControl("login", "로그인", "btn", "button")
	return fake
}

func newPoller(source StatusSource, fake *pagetest.Fake) *Poller {
	logger := zap.NewNop()
	locator := locate.New(fake, logger).WithWait(50*time.Millisecond, time.Millisecond)
	injector := inject.New(fake, logger).WithPacing(0, 0)
	return New(source, fake, locator, injector, logger).WithInterval(time.Millisecond)
}

func clockNow(offset time.Duration) string {
	return time.Now().Add(offset).Format("15:04:05")
}

func coupang(t *testing.T) *platform.Profile {
	t.Helper()
	prof, ok := platform.Lookup(schemas.PlatformCoupang)
	require.True(t, ok)
	return prof
}

func TestPollerRun(t *testing.T) {
	t.Run("enters the code once it arrives", func(t *testing.T) {
		source := &scriptedSource{snapshots: []map[string]smsapi.AuthCode{
			snapshot(map[string][2]string{"phone1": {schemas.AuthCodeSentinel, ""}}),
			snapshot(map[string][2]string{"phone1": {schemas.AuthCodeSentinel, ""}}),
			snapshot(map[string][2]string{"phone1": {"482913", clockNow(time.Second)}}),
		}}
		fake := codePage()
		p := newPoller(source, fake)

		state := p.Run(context.Background(), coupang(t), time.Now().Add(-time.Minute))
		assert.Equal(t, Resolved, state)
		assert.Equal(t, Resolved, p.State())

		assert.Equal(t, "482913", fake.Element("code-input").Value)
		assert.Equal(t, 1, fake.Element("confirm").Clicks)
		assert.Zero(t, fake.Element("login").Clicks, "the login control must never fire")
	})

	t.Run("source failures spend attempts without aborting", func(t *testing.T) {
		source := &scriptedSource{
			errs: []error{errors.New("connection refused"), errors.New("connection refused")},
			snapshots: []map[string]smsapi.AuthCode{
				nil, nil,
				snapshot(map[string][2]string{"phone1": {"123456", clockNow(time.Second)}}),
			},
		}
		fake := codePage()
		state := newPoller(source, fake).Run(context.Background(), coupang(t), time.Now().Add(-time.Minute))
		assert.Equal(t, Resolved, state)
	})

	t.Run("times out at the ceiling and leaves the page alone", func(t *testing.T) {
		source := &scriptedSource{snapshots: []map[string]smsapi.AuthCode{
			snapshot(map[string][2]string{"phone1": {schemas.AuthCodeSentinel, ""}}),
		}}
		fake := codePage()
		p := newPoller(source, fake)
		p.maxAttempts = 3

		state := p.Run(context.Background(), coupang(t), time.Now())
		assert.Equal(t, TimedOut, state)
		assert.Equal(t, TimedOut, p.State())
		assert.Empty(t, fake.Element("code-input").Value)
		assert.Zero(t, fake.Element("confirm").Clicks)
	})

	t.Run("profile ceiling overrides the default", func(t *testing.T) {
		source := &scriptedSource{}
		p := newPoller(source, codePage())
		p.maxAttempts = 100

		prof := &platform.Profile{Platform: schemas.PlatformElevenst, OTPMaxAttempts: 2}
		state := p.Run(context.Background(), prof, time.Now())
		assert.Equal(t, TimedOut, state)
		assert.Equal(t, 2, source.calls)
	})

	t.Run("stale codes never resolve", func(t *testing.T) {
		// Delivered a minute before this attempt's marker.
		source := &scriptedSource{snapshots: []map[string]smsapi.AuthCode{
			snapshot(map[string][2]string{"phone1": {"123456", clockNow(-time.Minute)}}),
		}}
		p := newPoller(source, codePage())
		p.maxAttempts = 3

		state := p.Run(context.Background(), coupang(t), time.Now())
		assert.Equal(t, TimedOut, state)
	})

	t.Run("cancellation is terminal", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		state := newPoller(&scriptedSource{}, codePage()).Run(ctx, coupang(t), time.Now())
		assert.Equal(t, TimedOut, state)
	})
}

func TestEnterCode(t *testing.T) {
	t.Run("manual path types and confirms", func(t *testing.T) {
		fake := codePage()
		p := newPoller(&scriptedSource{}, fake)

		err := p.EnterCode(context.Background(), coupang(t), "654321")
		require.NoError(t, err)
		assert.Equal(t, "654321", fake.Element("code-input").Value)
		assert.Equal(t, 6, fake.Element("code-input").SetCalls, "codes are typed per character")
		assert.Equal(t, 1, fake.Element("confirm").Clicks)
	})

	t.Run("waits for a late-rendering input", func(t *testing.T) {
		fake := codePage()
		fake.AppearAfter(`input[placeholder*="인증"]`, 3)

		err := newPoller(&scriptedSource{}, fake).EnterCode(context.Background(), coupang(t), "111222")
		require.NoError(t, err)
		assert.Equal(t, "111222", fake.Element("code-input").Value)
	})

	t.Run("no code input is an error", func(t *testing.T) {
		fake := pagetest.New()
		err := newPoller(&scriptedSource{}, fake).EnterCode(context.Background(), coupang(t), "111222")
		require.Error(t, err)
	})

	t.Run("no confirm control is an error", func(t *testing.T) {
		fake := pagetest.New()
		fake.AddElement("code-input", nil)
		fake.MapSelector(`input[placeholder*="인증"]`, "code-input")
		fake.AddControl("login", "로그인", "btn", "button")

		err := newPoller(&scriptedSource{}, fake).EnterCode(context.Background(), coupang(t), "111222")
		require.Error(t, err)
		assert.Zero(t, fake.Element("login").Clicks)
	})
}

func TestToRecordsSequencing(t *testing.T) {
	p := newPoller(&scriptedSource{}, pagetest.New())

	first := p.toRecords(snapshot(map[string][2]string{"phone1": {"111111", ""}}))
	require.Len(t, first, 1)
	seq1 := first[0].Sequence

	// Same code again: sequence is stable.
	again := p.toRecords(snapshot(map[string][2]string{"phone1": {"111111", ""}}))
	assert.Equal(t, seq1, again[0].Sequence)

	// Code change bumps the shared counter.
	changed := p.toRecords(snapshot(map[string][2]string{"phone1": {"222222", ""}}))
	assert.Greater(t, changed[0].Sequence, seq1)

	// A second source changing later outranks the first.
	both := p.toRecords(snapshot(map[string][2]string{
		"phone1": {"222222", ""},
		"phone2": {"333333", ""},
	}))
	bySource := map[string]int{}
	for _, r := range both {
		bySource[r.SourceID] = r.Sequence
	}
	assert.Greater(t, bySource["phone2"], bySource["phone1"])
}
