// internal/otp/select_test.go
package otp

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkonomy/sellerflow/api/schemas"
)

func at(t *testing.T, clock string) time.Time {
	t.Helper()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)
	parsed, err := time.Parse("15:04:05", clock)
	require.NoError(t, err)
	return time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0, now.Location())
}

func TestSelect(t *testing.T) {
	now := at(t, "14:10:00")

	t.Run("most recent delivery wins", func(t *testing.T) {
		got := Select([]schemas.AuthCodeRecord{
			{SourceID: "phone1", Code: "111111", DeliveredAt: "14:01:00", Sequence: 1},
			{SourceID: "phone2", Code: "222222", DeliveredAt: "14:05:00", Sequence: 2},
			{SourceID: "phone3", Code: "333333", DeliveredAt: "14:03:00", Sequence: 3},
		}, at(t, "14:00:00"), now)
		require.NotNil(t, got)

		want := schemas.AuthCodeRecord{SourceID: "phone2", Code: "222222", DeliveredAt: "14:05:00", Sequence: 2}
		if diff := cmp.Diff(want, *got); diff != "" {
			t.Errorf("selected record mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("sentinel and malformed codes are never selected", func(t *testing.T) {
		got := Select([]schemas.AuthCodeRecord{
			{SourceID: "waiting", Code: schemas.AuthCodeSentinel, DeliveredAt: "14:09:00", Sequence: 9},
			{SourceID: "words", Code: "abc123", DeliveredAt: "14:08:00", Sequence: 8},
			{SourceID: "long", Code: "1234567", DeliveredAt: "14:07:00", Sequence: 7},
			{SourceID: "short", Code: "123", DeliveredAt: "14:06:00", Sequence: 6},
			{SourceID: "empty", Code: "", DeliveredAt: "14:05:00", Sequence: 5},
			{SourceID: "real", Code: "4821", DeliveredAt: "14:01:00", Sequence: 1},
		}, at(t, "14:00:00"), now)
		require.NotNil(t, got)
		assert.Equal(t, "4821", got.Code)
	})

	t.Run("deliveries before the marker are stale", func(t *testing.T) {
		marker := at(t, "14:00:00")
		got := Select([]schemas.AuthCodeRecord{
			{SourceID: "old", Code: "123456", DeliveredAt: "13:59:59", Sequence: 5},
			{SourceID: "new", Code: "654321", DeliveredAt: "14:00:30", Sequence: 1},
		}, marker, now)
		require.NotNil(t, got)
		assert.Equal(t, "654321", got.Code)
	})

	t.Run("delivery exactly at the marker is fresh", func(t *testing.T) {
		marker := at(t, "14:00:00")
		got := Select([]schemas.AuthCodeRecord{
			{SourceID: "edge", Code: "123456", DeliveredAt: "14:00:00", Sequence: 1},
		}, marker, now)
		require.NotNil(t, got)
		assert.Equal(t, "123456", got.Code)
	})

	t.Run("equal delivery times break on sequence", func(t *testing.T) {
		got := Select([]schemas.AuthCodeRecord{
			{SourceID: "phone1", Code: "123456", DeliveredAt: "14:05:00", Sequence: 3},
			{SourceID: "phone2", Code: "654321", DeliveredAt: "14:05:00", Sequence: 7},
		}, at(t, "14:00:00"), now)
		require.NotNil(t, got)
		assert.Equal(t, "654321", got.Code)
	})

	t.Run("only stale codes yields nothing", func(t *testing.T) {
		got := Select([]schemas.AuthCodeRecord{
			{SourceID: "old", Code: "123456", DeliveredAt: "13:00:00", Sequence: 5},
		}, at(t, "14:00:00"), now)
		assert.Nil(t, got)
	})

	t.Run("sourceless records are a last resort", func(t *testing.T) {
		records := []schemas.AuthCodeRecord{
			{SourceID: "untimed", Code: "999999", Sequence: 9},
			{SourceID: "timed", Code: "111111", DeliveredAt: "14:05:00", Sequence: 1},
		}
		got := Select(records, at(t, "14:00:00"), now)
		require.NotNil(t, got)
		assert.Equal(t, "111111", got.Code, "a timestamped candidate beats any untimed one")

		got = Select(records[:1], at(t, "14:00:00"), now)
		require.NotNil(t, got)
		assert.Equal(t, "999999", got.Code, "untimed is used only when nothing else qualifies")
	})

	t.Run("malformed timestamps are treated as absent", func(t *testing.T) {
		got := Select([]schemas.AuthCodeRecord{
			{SourceID: "garbled", Code: "123456", DeliveredAt: "25:99:99", Sequence: 1},
		}, at(t, "14:00:00"), now)
		require.NotNil(t, got)
		assert.Equal(t, "123456", got.Code)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, Select(nil, at(t, "14:00:00"), now))
	})
}
