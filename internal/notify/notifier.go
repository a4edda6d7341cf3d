// Package notify delivers operator notifications for session approvals,
// session resets, exhausted decks and errors. Each notification goes to every
// registered sender; event filtering and a per-event cooldown keep repeated
// failures from flooding the channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// Notification is a single rendered alert.
type Notification struct {
	Event   string
	Title   string
	Message string
	At      time.Time
}

// Options configures a Notifier.
type Options struct {
	// Events lists the event types that are forwarded. Empty forwards all.
	Events []string
	// Cooldown suppresses a repeat of the same event and title inside the
	// window. Zero disables suppression.
	Cooldown time.Duration
	Now      func() time.Time
}

// Notifier fans notifications out to its senders.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewNotifier creates a Notifier delivering to senders.
func NewNotifier(senders []Sender, opts Options, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(opts.Events))
	for _, e := range opts.Events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		cooldown: opts.Cooldown,
		now:      opts.Now,
		logger:   logger.With(slog.String("component", "notifier")),
		last:     make(map[string]time.Time),
	}
}

// Notify forwards the event to every sender unless it is filtered out or
// still cooling down.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	now := n.now()
	if n.suppressed(event+"|"+title, now) {
		n.logger.DebugContext(ctx, "event in cooldown", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Notification{Event: event, Title: title, Message: message, At: now})
}

func (n *Notifier) suppressed(key string, now time.Time) bool {
	if n.cooldown <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.last[key]; ok && now.Sub(last) < n.cooldown {
		return true
	}
	n.last[key] = now
	return false
}

// dispatch sends to every sender. One failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, note Notification) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", note.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", note.Event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// LogSender writes notifications to the structured log. It is used when no
// external channel is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (l LogSender) Send(ctx context.Context, n Notification) error {
	l.Logger.InfoContext(ctx, "notification",
		slog.String("event", n.Event),
		slog.String("title", n.Title),
		slog.String("message", n.Message),
	)
	return nil
}

// Name implements Sender.
func (LogSender) Name() string { return "log" }
