package deck

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

type tickRecorder struct {
	mu    sync.Mutex
	ticks map[string][]string
}

func (r *tickRecorder) emit(id, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks[id] = append(r.ticks[id], text)
}

func (r *tickRecorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks[id])
}

func TestCountdownsSync(t *testing.T) {
	rec := &tickRecorder{ticks: map[string][]string{}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCountdowns(ctx, 10*time.Millisecond, rec.emit)
	defer c.Stop()

	closeAt := time.Now().Add(time.Hour)
	a := domain.Market{ID: "a", ClosingAt: &closeAt}
	b := domain.Market{ID: "b", ClosingAt: &closeAt}
	tbd := domain.Market{ID: "tbd"}

	c.Sync([]domain.Market{a, b, tbd})
	assert.Equal(t, 3, c.Active())

	require.Eventually(t, func() bool { return rec.count("a") >= 3 }, time.Second, 5*time.Millisecond)

	// Unmounting b stops its timer.
	c.Sync([]domain.Market{a})
	assert.Equal(t, 1, c.Active())
	time.Sleep(30 * time.Millisecond)
	stopped := rec.count("b")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, rec.count("b"))

	// Static cards emit once.
	assert.Equal(t, 1, rec.count("tbd"))
	rec.mu.Lock()
	assert.Equal(t, "TBD", rec.ticks["tbd"][0])
	rec.mu.Unlock()
}

func TestCountdownsRecomputeFromAbsoluteTime(t *testing.T) {
	rec := &tickRecorder{ticks: map[string][]string{}}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	closeAt := base.Add(2 * time.Hour)

	var mu sync.Mutex
	now := base
	c := NewCountdowns(context.Background(), 5*time.Millisecond, rec.emit)
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	c.Sync([]domain.Market{{ID: "m", ClosingAt: &closeAt}})
	require.Eventually(t, func() bool { return rec.count("m") >= 1 }, time.Second, time.Millisecond)

	// Jump forward as if the process had been suspended.
	mu.Lock()
	now = base.Add(90 * time.Minute)
	mu.Unlock()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		ticks := rec.ticks["m"]
		return ticks[len(ticks)-1] == "30min"
	}, time.Second, time.Millisecond)

	c.Stop()
	assert.Equal(t, 0, c.Active())
}
