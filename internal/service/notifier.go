package service

import "context"

// Notifier delivers operator notices. notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notice event names, filtered by notify.events in the config.
const (
	EventSessionApproved = "session_approved"
	EventSessionReset    = "session_reset"
	EventDeckExhausted   = "deck_exhausted"
	EventError           = "error"
)
