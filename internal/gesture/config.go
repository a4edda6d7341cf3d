// Package gesture is a headless swipe engine: it tracks a single-pointer drag
// over the top card, classifies the release into a swipe direction, drives
// the fly-away or spring-back animation, and reports each committed swipe
// exactly once.
package gesture

import (
	"math"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// Config holds thresholds and animation parameters.
type Config struct {
	DragSlop         float64
	HorizontalRatio  float64
	VerticalRatio    float64
	FlyAwayOvershoot float64
	FlyAwayDuration  time.Duration
	SpringFriction   float64
	SpringTension    float64
	MaxRotationDeg   float64
}

// DefaultConfig returns the stock swipe tuning.
func DefaultConfig() Config {
	return Config{
		DragSlop:         4,
		HorizontalRatio:  0.24,
		VerticalRatio:    0.18,
		FlyAwayOvershoot: 160,
		FlyAwayDuration:  220 * time.Millisecond,
		SpringFriction:   6,
		SpringTension:    90,
		MaxRotationDeg:   10,
	}
}

// Viewport is the size of the surface the deck is laid out on.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is an offset from the gesture origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Thresholds returns the horizontal and vertical commit distances.
func (c Config) Thresholds(vp Viewport) (x, y float64) {
	return c.HorizontalRatio * vp.Width, c.VerticalRatio * vp.Height
}

// ExceedsSlop reports whether a pointer movement counts as a drag.
func (c Config) ExceedsSlop(dx, dy float64) bool {
	return math.Abs(dx) > c.DragSlop || math.Abs(dy) > c.DragSlop
}

// Classify maps a released drag to a direction. Horizontal thresholds are
// checked before vertical, so a drag past both commits left or right.
func (c Config) Classify(dx, dy float64, vp Viewport) domain.Direction {
	thrX, thrY := c.Thresholds(vp)
	switch {
	case dx > thrX:
		return domain.DirectionRight
	case dx < -thrX:
		return domain.DirectionLeft
	case dy > thrY:
		return domain.DirectionDown
	default:
		return domain.DirectionNone
	}
}

// FlyAwayTarget is where a committed card animates to: off the edge in the
// swipe direction, keeping the other axis where the finger left it.
func (c Config) FlyAwayTarget(dir domain.Direction, from Point, vp Viewport) Point {
	switch dir {
	case domain.DirectionRight:
		return Point{X: vp.Width + c.FlyAwayOvershoot, Y: from.Y}
	case domain.DirectionLeft:
		return Point{X: -vp.Width - c.FlyAwayOvershoot, Y: from.Y}
	case domain.DirectionDown:
		return Point{X: from.X, Y: vp.Height + c.FlyAwayOvershoot}
	default:
		return Point{}
	}
}

// SpringSettleDuration estimates how long the spring-back takes to come to
// rest, using the origami tension/friction conversion and a 2% settle band.
func (c Config) SpringSettleDuration() time.Duration {
	stiffness := (c.SpringTension-30)*3.62 + 194
	damping := (c.SpringFriction-8)*3 + 25
	if stiffness <= 0 || damping <= 0 {
		return c.FlyAwayDuration
	}
	omega := math.Sqrt(stiffness)
	zeta := damping / (2 * omega)
	var settle float64
	if zeta < 1 {
		settle = 4 / (zeta * omega)
	} else {
		settle = 4 * zeta / omega
	}
	return time.Duration(settle * float64(time.Second))
}
