package gesture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

var phone = Viewport{Width: 400, Height: 800}

type manualAnimator struct {
	mu      sync.Mutex
	started []Animation
	done    []func()
	stopped int
}

var _ Animator = (*manualAnimator)(nil)

func (m *manualAnimator) Start(a Animation, done func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, a)
	m.done = append(m.done, done)
	return func() {
		m.mu.Lock()
		m.stopped++
		m.mu.Unlock()
	}
}

func (m *manualAnimator) complete(i int) {
	m.mu.Lock()
	done := m.done[i]
	m.mu.Unlock()
	done()
}

type commitRecorder struct {
	mu    sync.Mutex
	dirs  []domain.Direction
	mkts  []domain.Market
	err   error
	panic bool
}

func (r *commitRecorder) fn(dir domain.Direction, m domain.Market) error {
	r.mu.Lock()
	r.dirs = append(r.dirs, dir)
	r.mkts = append(r.mkts, m)
	r.mu.Unlock()
	if r.panic {
		panic("boom")
	}
	return r.err
}

func (r *commitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dirs)
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		dx, dy float64
		want   domain.Direction
	}{
		{"right", 0.25 * phone.Width, 0, domain.DirectionRight},
		{"left", -0.25 * phone.Width, 0, domain.DirectionLeft},
		{"down", 0, 0.19 * phone.Height, domain.DirectionDown},
		{"horizontal wins over vertical", 0.25 * phone.Width, 0.19 * phone.Height, domain.DirectionRight},
		{"exactly at threshold does not commit", 0.24 * phone.Width, 0, domain.DirectionNone},
		{"up never commits", 0, -0.5 * phone.Height, domain.DirectionNone},
		{"short drag", 20, 20, domain.DirectionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Classify(tt.dx, tt.dy, phone))
		})
	}
}

func TestFlyAwayTarget(t *testing.T) {
	cfg := DefaultConfig()
	from := Point{X: 10, Y: 30}
	assert.Equal(t, Point{X: 560, Y: 30}, cfg.FlyAwayTarget(domain.DirectionRight, from, phone))
	assert.Equal(t, Point{X: -560, Y: 30}, cfg.FlyAwayTarget(domain.DirectionLeft, from, phone))
	assert.Equal(t, Point{X: 10, Y: 960}, cfg.FlyAwayTarget(domain.DirectionDown, from, phone))
}

func TestOverlayClamps(t *testing.T) {
	cfg := DefaultConfig()
	thrX, thrY := cfg.Thresholds(phone)

	o := cfg.Overlay(Point{X: thrX / 2}, phone)
	assert.InDelta(t, 0.5, o.Yes, 1e-9)
	assert.Zero(t, o.No)
	assert.Zero(t, o.Pass)

	o = cfg.Overlay(Point{X: -3 * thrX, Y: 2 * thrY}, phone)
	assert.Zero(t, o.Yes)
	assert.Equal(t, 1.0, o.No)
	assert.Equal(t, 1.0, o.Pass)

	o = cfg.Overlay(Point{Y: -thrY}, phone)
	assert.Zero(t, o.Pass)
}

func TestRotation(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 10, cfg.Rotation(200, phone), 1e-9)
	assert.InDelta(t, -10, cfg.Rotation(-200, phone), 1e-9)
	assert.InDelta(t, 5, cfg.Rotation(100, phone), 1e-9)
	assert.InDelta(t, 20, cfg.Rotation(400, phone), 1e-9)
	assert.Zero(t, cfg.Rotation(100, Viewport{}))
}

func TestStackLayout(t *testing.T) {
	layout := StackLayout(5, 3)
	require.Len(t, layout, 3)
	assert.True(t, layout[0].Interactive)
	assert.False(t, layout[1].Interactive)
	assert.InDelta(t, 0.93, layout[2].Scale, 1e-9)
	assert.InDelta(t, 20, layout[2].TranslateY, 1e-9)
	assert.InDelta(t, 0.8, layout[2].Opacity, 1e-9)

	assert.Len(t, StackLayout(1, 3), 1)
	assert.Empty(t, StackLayout(0, 3))
}

func TestSpringSettleDuration(t *testing.T) {
	d := DefaultConfig().SpringSettleDuration()
	assert.Greater(t, d, 200*time.Millisecond)
	assert.Less(t, d, time.Second)
}

func TestEngine_CommitRight(t *testing.T) {
	anim := &manualAnimator{}
	rec := &commitRecorder{}
	e := NewEngine(DefaultConfig(), phone, anim, rec.fn, nil)

	require.True(t, e.Begin(&domain.Market{ID: "m1"}))
	assert.Equal(t, StateDragging, e.Move(0.25*phone.Width, 0.19*phone.Height))

	out := e.Release()
	assert.Equal(t, domain.DirectionRight, out.Direction)
	require.NotNil(t, out.Animation)
	assert.Equal(t, AnimationFlyAway, out.Animation.Kind)
	assert.Equal(t, 220*time.Millisecond, out.Animation.Duration)
	assert.Equal(t, StateSettling, e.State())
	assert.Zero(t, rec.count())

	anim.complete(0)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, domain.DirectionRight, rec.dirs[0])
	assert.Equal(t, "m1", rec.mkts[0].ID)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, Point{}, e.Offset())
}

func TestEngine_CommitsOnce(t *testing.T) {
	anim := &manualAnimator{}
	rec := &commitRecorder{}
	e := NewEngine(DefaultConfig(), phone, anim, rec.fn, nil)

	e.Begin(&domain.Market{ID: "m1"})
	e.Move(-300, 0)
	e.Release()
	assert.Equal(t, Outcome{}, e.Release())

	anim.complete(0)
	anim.complete(0)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, domain.DirectionLeft, rec.dirs[0])
}

func TestEngine_CapturesMarketAtStart(t *testing.T) {
	anim := &manualAnimator{}
	rec := &commitRecorder{}
	e := NewEngine(DefaultConfig(), phone, anim, rec.fn, nil)

	top := &domain.Market{ID: "m1", Question: "first"}
	e.Begin(top)
	e.Move(0, 300)
	e.Release()

	// deck mutates during the fly-away
	top.ID = "m2"
	top.Question = "second"
	e.TopChanged("m2")
	assert.Equal(t, StateSettling, e.State())

	anim.complete(0)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, domain.DirectionDown, rec.dirs[0])
	assert.Equal(t, "m1", rec.mkts[0].ID)
	assert.Equal(t, "first", rec.mkts[0].Question)
}

func TestEngine_CancelSpringsBack(t *testing.T) {
	anim := &manualAnimator{}
	rec := &commitRecorder{}
	e := NewEngine(DefaultConfig(), phone, anim, rec.fn, nil)

	e.Begin(&domain.Market{ID: "m1"})
	e.Move(50, 40)
	assert.Equal(t, Point{X: 50, Y: 40}, e.Offset())

	out := e.Release()
	assert.Equal(t, domain.DirectionNone, out.Direction)
	require.NotNil(t, out.Animation)
	assert.Equal(t, AnimationSpring, out.Animation.Kind)
	assert.Equal(t, Point{}, out.Animation.To)

	anim.complete(0)
	assert.Zero(t, rec.count())
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, Point{}, e.Offset())
}

func TestEngine_DragSlop(t *testing.T) {
	rec := &commitRecorder{}
	e := NewEngine(DefaultConfig(), phone, nil, rec.fn, nil)

	e.Begin(&domain.Market{ID: "m1"})
	assert.Equal(t, StatePressed, e.Move(3, -4))
	assert.Equal(t, Point{}, e.Offset())

	out := e.Release()
	assert.True(t, out.Tap)
	assert.Zero(t, rec.count())
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_NoTopIsNoop(t *testing.T) {
	rec := &commitRecorder{}
	e := NewEngine(DefaultConfig(), phone, ImmediateAnimator{}, rec.fn, nil)

	e.Begin(nil)
	e.Move(300, 0)
	out := e.Release()
	assert.Equal(t, domain.DirectionRight, out.Direction)
	assert.Zero(t, rec.count())
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_HandlerFailuresSwallowed(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		rec := &commitRecorder{err: errors.New("store down")}
		e := NewEngine(DefaultConfig(), phone, ImmediateAnimator{}, rec.fn, nil)
		e.Begin(&domain.Market{ID: "m1"})
		e.Move(300, 0)
		e.Release()
		assert.Equal(t, 1, rec.count())
		assert.Equal(t, StateIdle, e.State())
	})
	t.Run("panic", func(t *testing.T) {
		rec := &commitRecorder{panic: true}
		e := NewEngine(DefaultConfig(), phone, ImmediateAnimator{}, rec.fn, nil)
		e.Begin(&domain.Market{ID: "m1"})
		e.Move(300, 0)
		assert.NotPanics(t, func() { e.Release() })
		assert.Equal(t, StateIdle, e.State())
	})
}

func TestEngine_BusyWhileSettling(t *testing.T) {
	anim := &manualAnimator{}
	e := NewEngine(DefaultConfig(), phone, anim, nil, nil)

	e.Begin(&domain.Market{ID: "m1"})
	e.Move(300, 0)
	e.Release()
	assert.False(t, e.Begin(&domain.Market{ID: "m2"}))

	anim.complete(0)
	assert.True(t, e.Begin(&domain.Market{ID: "m2"}))
}

func TestEngine_TopChangeResetsDrag(t *testing.T) {
	anim := &manualAnimator{}
	rec := &commitRecorder{}
	e := NewEngine(DefaultConfig(), phone, anim, rec.fn, nil)

	e.Begin(&domain.Market{ID: "m1"})
	e.Move(80, 0)
	e.TopChanged("m2")
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, Point{}, e.Offset())
	assert.Equal(t, Outcome{}, e.Release())

	// a spring-back in flight is cut short
	e.Begin(&domain.Market{ID: "m2"})
	e.Move(80, 0)
	e.Release()
	e.TopChanged("m3")
	assert.Equal(t, 1, anim.stopped)
	assert.Equal(t, StateIdle, e.State())
	anim.complete(0)
	assert.Zero(t, rec.count())
}

func TestEngine_CommitCallbackMayReenter(t *testing.T) {
	var e *Engine
	rec := &commitRecorder{}
	e = NewEngine(DefaultConfig(), phone, ImmediateAnimator{}, func(dir domain.Direction, m domain.Market) error {
		e.TopChanged("next")
		return rec.fn(dir, m)
	}, nil)

	e.Begin(&domain.Market{ID: "m1"})
	e.Move(300, 0)
	e.Release()
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, StateIdle, e.State())
}

func TestTimerAnimator(t *testing.T) {
	done := make(chan struct{})
	TimerAnimator{}.Start(Animation{Duration: time.Millisecond}, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("animation never completed")
	}

	called := false
	stop := TimerAnimator{}.Start(Animation{Duration: time.Hour}, func() { called = true })
	stop()
	assert.False(t, called)
}
