package domain

// Event channels published on the SignalBus. Per-user channels append
// ":<userID>".
const (
	ChannelDeck      = "ch:deck"
	ChannelCountdown = "ch:countdown"
	ChannelWallet    = "ch:wallet"
	StreamSwipes     = "stream:swipes"
)

// DeckEvent is published whenever a user's deck changes.
type DeckEvent struct {
	Type     string   `json:"type"`
	UserID   string   `json:"userId"`
	Visible  int      `json:"visible"`
	Total    int      `json:"total"`
	HasMore  bool     `json:"hasMore"`
	Loading  bool     `json:"loading"`
	Page     int      `json:"page"`
	MarketID string   `json:"marketId,omitempty"`
	Top      []string `json:"top,omitempty"`
}

// CountdownTick carries the recomputed countdown for one mounted card.
type CountdownTick struct {
	UserID   string `json:"userId"`
	MarketID string `json:"marketId"`
	Text     string `json:"text"`
}

// ServiceStatus is a summary of the service's operational state.
type ServiceStatus struct {
	Mode          string `json:"mode"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	ActiveDecks   int    `json:"activeDecks"`
	WSClients     int    `json:"wsClients"`
}
