package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a stake taken by swiping a market YES or NO.
type Position struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	MarketID        string          `json:"marketId"`
	Question        string          `json:"question"`
	Side            Side            `json:"side"`
	Stake           decimal.Decimal `json:"stake"`
	EntryYesPercent int             `json:"entryYesPercent"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// UserState is a user's demo balance and progress.
type UserState struct {
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	XP        int             `json:"xp"`
	Positions int             `json:"positions"`
	Passes    int             `json:"passes"`
}

// SwipeOutcome reports what a committed swipe did to the user's book.
type SwipeOutcome struct {
	Event    SwipeEvent `json:"event"`
	Side     Side       `json:"side"`
	Position *Position  `json:"position,omitempty"`
	// Reason explains a downgrade to PASS, e.g. insufficient balance.
	Reason string    `json:"reason,omitempty"`
	State  UserState `json:"state"`
}
