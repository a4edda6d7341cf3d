package gesture

import (
	"sync"
	"time"
)

// AnimationKind distinguishes commit and cancel animations.
type AnimationKind string

const (
	AnimationFlyAway AnimationKind = "fly_away"
	AnimationSpring  AnimationKind = "spring"
)

// Animation describes one card movement.
type Animation struct {
	Kind     AnimationKind `json:"kind"`
	From     Point         `json:"from"`
	To       Point         `json:"to"`
	Duration time.Duration `json:"duration"`
}

// Animator runs an animation and calls done once it completes. The returned
// stop function ends the animation early without calling done. done may run
// on another goroutine, or synchronously before Start returns.
type Animator interface {
	Start(a Animation, done func()) (stop func())
}

// TimerAnimator completes each animation after its duration elapses.
type TimerAnimator struct{}

// Start implements Animator.
func (TimerAnimator) Start(a Animation, done func()) func() {
	var once sync.Once
	t := time.AfterFunc(a.Duration, func() { once.Do(done) })
	return func() {
		t.Stop()
		once.Do(func() {})
	}
}

// ImmediateAnimator completes every animation synchronously. Headless callers
// that only need the outcome use it.
type ImmediateAnimator struct{}

// Start implements Animator.
func (ImmediateAnimator) Start(_ Animation, done func()) func() {
	done()
	return func() {}
}
