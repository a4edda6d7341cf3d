package gesture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// State is the lifecycle position of the engine.
type State string

const (
	StateIdle      State = "idle"
	StatePressed   State = "pressed"
	StateDragging  State = "dragging"
	StateSettling  State = "settling"
	StateCommitted State = "committed"
)

// CommitFunc receives a committed swipe with the market that was on top when
// the gesture began.
type CommitFunc func(dir domain.Direction, m domain.Market) error

// Outcome is the result of releasing the pointer.
type Outcome struct {
	Direction domain.Direction `json:"direction"`
	Animation *Animation       `json:"animation,omitempty"`
	// Tap is true when the pointer never moved past the drag slop.
	Tap bool `json:"tap,omitempty"`
}

// Engine tracks one pointer at a time over the top card. All methods are safe
// for concurrent use; the commit callback always runs without the lock held.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	vp       Viewport
	animator Animator
	onCommit CommitFunc
	logger   *slog.Logger

	state   State
	offset  Point
	topID   string
	subject *domain.Market
	gen     uint64
	kind    AnimationKind
	stop    func()
}

// NewEngine creates an engine over the given viewport. A nil animator
// completes animations immediately.
func NewEngine(cfg Config, vp Viewport, animator Animator, onCommit CommitFunc, logger *slog.Logger) *Engine {
	if animator == nil {
		animator = ImmediateAnimator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		vp:       vp,
		animator: animator,
		onCommit: onCommit,
		logger:   logger.With(slog.String("component", "gesture")),
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Offset returns the current drag offset.
func (e *Engine) Offset() Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offset
}

// Overlay returns the overlay opacities for the current offset.
func (e *Engine) Overlay() Overlay {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Overlay(e.offset, e.vp)
}

// Rotation returns the top card tilt for the current offset.
func (e *Engine) Rotation() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Rotation(e.offset.X, e.vp)
}

// SetViewport updates the layout size used for thresholds.
func (e *Engine) SetViewport(vp Viewport) {
	e.mu.Lock()
	e.vp = vp
	e.mu.Unlock()
}

// TopChanged tells the engine the deck's top card is now id. A change resets
// the offset and abandons a drag in progress. A fly-away already underway
// keeps its captured market and completes normally.
func (e *Engine) TopChanged(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == e.topID {
		return
	}
	e.topID = id
	switch {
	case e.state == StateSettling && e.kind == AnimationSpring:
		e.stopLocked()
		e.resetLocked()
	case e.state == StateSettling, e.state == StateCommitted:
		// a fly-away keeps its captured market
	default:
		e.resetLocked()
	}
}

// Begin starts a gesture over top. The market is copied so later changes to
// the deck cannot alter which market the gesture commits against. Begin
// returns false while a previous gesture is still animating.
func (e *Engine) Begin(top *domain.Market) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSettling || e.state == StateCommitted {
		return false
	}
	e.resetLocked()
	e.state = StatePressed
	if top != nil {
		m := *top
		e.subject = &m
		e.topID = m.ID
	}
	return true
}

// Move reports the pointer's displacement from where it went down. The card
// follows only once the movement exceeds the drag slop.
func (e *Engine) Move(dx, dy float64) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StatePressed:
		if !e.cfg.ExceedsSlop(dx, dy) {
			return e.state
		}
		e.state = StateDragging
		fallthrough
	case StateDragging:
		e.offset = Point{X: dx, Y: dy}
	}
	return e.state
}

// Release ends the pointer interaction and starts the commit or cancel
// animation.
func (e *Engine) Release() Outcome {
	e.mu.Lock()
	switch e.state {
	case StatePressed:
		e.resetLocked()
		e.mu.Unlock()
		return Outcome{Tap: true}
	case StateDragging:
	default:
		e.mu.Unlock()
		return Outcome{}
	}

	dir := e.cfg.Classify(e.offset.X, e.offset.Y, e.vp)
	anim := Animation{From: e.offset}
	if dir == domain.DirectionNone {
		anim.Kind = AnimationSpring
		anim.Duration = e.cfg.SpringSettleDuration()
	} else {
		anim.Kind = AnimationFlyAway
		anim.To = e.cfg.FlyAwayTarget(dir, e.offset, e.vp)
		anim.Duration = e.cfg.FlyAwayDuration
	}
	e.state = StateSettling
	e.gen++
	gen := e.gen
	kind := anim.Kind
	e.kind = kind
	e.mu.Unlock()

	stop := e.animator.Start(anim, func() { e.finish(gen, kind, dir) })

	e.mu.Lock()
	if e.gen == gen && e.state == StateSettling {
		e.stop = stop
	}
	e.mu.Unlock()
	return Outcome{Direction: dir, Animation: &anim}
}

// finish runs when an animation completes. The commit callback fires at most
// once per generation.
func (e *Engine) finish(gen uint64, kind AnimationKind, dir domain.Direction) {
	e.mu.Lock()
	if e.gen != gen || e.state != StateSettling {
		e.mu.Unlock()
		return
	}
	if kind == AnimationSpring {
		e.resetLocked()
		e.mu.Unlock()
		return
	}
	subject := e.subject
	e.resetLocked()
	e.state = StateCommitted
	e.mu.Unlock()

	if subject != nil && e.onCommit != nil {
		e.commit(dir, *subject)
	}

	e.mu.Lock()
	if e.gen == gen && e.state == StateCommitted {
		e.state = StateIdle
	}
	e.mu.Unlock()
}

func (e *Engine) commit(dir domain.Direction, m domain.Market) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("swipe handler panicked",
				slog.String("market_id", m.ID),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if err := e.onCommit(dir, m); err != nil {
		e.logger.Warn("swipe handler failed",
			slog.String("market_id", m.ID),
			slog.String("direction", string(dir)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) stopLocked() {
	if e.stop != nil {
		e.stop()
	}
}

// resetLocked returns to idle with a zero offset. Callers hold e.mu.
func (e *Engine) resetLocked() {
	e.state = StateIdle
	e.offset = Point{}
	e.subject = nil
	e.kind = ""
	e.stop = nil
}
