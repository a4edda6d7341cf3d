package domain

import (
	"context"
	"time"
)

// Market is a yes/no prediction market card after normalization.
type Market struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Category   string     `json:"category"`
	YesPercent int        `json:"yesPercent"`
	ClosingAt  *time.Time `json:"closingAtIso"`
	// ClosingRaw keeps a close-time value that could not be parsed as a
	// timestamp; it is shown verbatim instead of a countdown.
	ClosingRaw     string   `json:"closingRaw,omitempty"`
	ClosingInText  string   `json:"closingInText"`
	Volume         string   `json:"volume"`
	Price          float64  `json:"price"`
	HighlightWords []string `json:"highlightWords,omitempty"`
	// YesPayout and NoPayout are backend-provided payout overrides; zero
	// means derive them from YesPercent.
	YesPayout int `json:"yesPayout,omitempty"`
	NoPayout  int `json:"noPayout,omitempty"`
}

// Page is one page of markets returned by the market API. FetchedCount is the
// raw record count of the winning response, before any deduplication.
type Page struct {
	Cards        []Market `json:"cards"`
	FetchedCount int      `json:"fetchedCount"`
}

// PageFetcher loads one page of markets. Implementations signal failure with
// an empty page rather than an error.
type PageFetcher interface {
	FetchPage(ctx context.Context, limit, offset int) Page
}
