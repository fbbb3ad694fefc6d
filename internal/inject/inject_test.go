// internal/inject/inject_test.go
package inject

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/internal/page"
	"github.com/pkonomy/sellerflow/internal/page/pagetest"
)

func newInjector(fake *pagetest.Fake) *Injector {
	return New(fake, zap.NewNop()).WithPacing(0, 0)
}

func TestFill(t *testing.T) {
	t.Run("writes the value and fires framework events", func(t *testing.T) {
		fake := pagetest.New()
		fake.AddElement("pw", nil)

		err := newInjector(fake).Fill(context.Background(), &page.Handle{ID: "pw"}, "Passw0rd!")
		require.NoError(t, err)

		el := fake.Element("pw")
		assert.Equal(t, "Passw0rd!", el.Value)
		assert.Equal(t, 1, el.SetCalls)
		assert.Equal(t, []string{"input", "change", "keyup"}, el.Events)
	})

	t.Run("nil handle is a no-op", func(t *testing.T) {
		err := newInjector(pagetest.New()).Fill(context.Background(), nil, "anything")
		assert.NoError(t, err)
	})

	t.Run("missing element surfaces the adapter error", func(t *testing.T) {
		err := newInjector(pagetest.New()).Fill(context.Background(), &page.Handle{ID: "gone"}, "x")
		assert.ErrorIs(t, err, page.ErrNotFound)
	})
}

func TestTypeSlow(t *testing.T) {
	t.Run("writes growing prefixes", func(t *testing.T) {
		fake := pagetest.New()
		fake.AddElement("otp", nil)

		err := newInjector(fake).TypeSlow(context.Background(), &page.Handle{ID: "otp"}, "123456")
		require.NoError(t, err)

		el := fake.Element("otp")
		assert.Equal(t, "123456", el.Value)
		assert.Equal(t, 6, el.SetCalls, "one write per character")
	})

	t.Run("handles multibyte input", func(t *testing.T) {
		fake := pagetest.New()
		fake.AddElement("field", nil)

		err := newInjector(fake).TypeSlow(context.Background(), &page.Handle{ID: "field"}, "인증123")
		require.NoError(t, err)

		el := fake.Element("field")
		assert.Equal(t, "인증123", el.Value)
		assert.Equal(t, 5, el.SetCalls, "one write per rune, not per byte")
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		fake := pagetest.New()
		fake.AddElement("otp", nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		inj := New(fake, zap.NewNop()) // real pacing so the sleep observes ctx
		err := inj.TypeSlow(ctx, &page.Handle{ID: "otp"}, "123456")
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotEqual(t, "123456", fake.Element("otp").Value)
	})
}
