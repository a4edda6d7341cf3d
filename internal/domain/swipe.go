package domain

import "time"

// Direction is the classified outcome of a released swipe gesture.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
	DirectionDown  Direction = "down"
)

// Side is the position a swipe direction maps to.
type Side string

const (
	SideYes  Side = "YES"
	SideNo   Side = "NO"
	SidePass Side = "PASS"
)

// Side maps right to YES, left to NO and everything else to PASS.
func (d Direction) Side() Side {
	switch d {
	case DirectionRight:
		return SideYes
	case DirectionLeft:
		return SideNo
	default:
		return SidePass
	}
}

// Valid reports whether d is a committable direction.
func (d Direction) Valid() bool {
	return d == DirectionLeft || d == DirectionRight || d == DirectionDown
}

// SwipeEvent is a committed swipe against the market that was on top of the
// deck when the gesture started.
type SwipeEvent struct {
	UserID    string    `json:"userId"`
	Direction Direction `json:"direction"`
	Market    Market    `json:"market"`
	At        time.Time `json:"at"`
}
