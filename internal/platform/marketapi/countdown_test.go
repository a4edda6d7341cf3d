package marketapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func TestFormatCountdown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		left time.Duration
		want string
	}{
		{"one day one hour", 90000 * time.Second, "1days 1hr"},
		{"hour minute second", 3661 * time.Second, "1hr 1min 1sec"},
		{"days and seconds only", 2*24*time.Hour + 5*time.Second, "2days 5sec"},
		{"sub second", 400 * time.Millisecond, "0sec"},
		{"fraction truncated", 59*time.Second + 900*time.Millisecond, "59sec"},
		{"exactly now", 0, "Closed"},
		{"past", -time.Minute, "Closed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCountdown(now.Add(tt.left), now))
		})
	}
}

func TestCountdown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	closeAt := now.Add(61 * time.Second)

	assert.Equal(t, "TBD", Countdown(domain.Market{}, now))
	assert.Equal(t, "after the election", Countdown(domain.Market{ClosingRaw: "after the election"}, now))
	assert.Equal(t, "1min 1sec", Countdown(domain.Market{ClosingAt: &closeAt}, now))
	// Recomputed from the absolute time, not decremented.
	assert.Equal(t, "1sec", Countdown(domain.Market{ClosingAt: &closeAt}, now.Add(time.Minute)))
}

func TestParseCloseTime(t *testing.T) {
	for _, in := range []string{
		"2026-12-31T23:59:59Z",
		"2026-12-31T23:59:59.000Z",
		"2026-12-31T23:59:59",
		"2026-12-31 23:59:59",
	} {
		got, ok := ParseCloseTime(in)
		assert.True(t, ok, in)
		assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), got, in)
	}

	got, ok := ParseCloseTime("2026-12-31")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseCloseTime("soon")
	assert.False(t, ok)
}
