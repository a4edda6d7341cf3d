package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memPositions is an in-memory PositionStore. createErr, when set, fails
// every Create. onCreate runs after a successful Create.
type memPositions struct {
	mu        sync.Mutex
	rows      []domain.Position
	createErr error
	onCreate  func()
}

var _ domain.PositionStore = (*memPositions)(nil)

func (m *memPositions) Create(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, p := range m.rows {
		if p.ID == pos.ID {
			return domain.ErrAlreadyExists
		}
	}
	m.rows = append(m.rows, pos)
	if m.onCreate != nil {
		m.onCreate()
	}
	return nil
}

func (m *memPositions) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.rows {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPositions) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.rows {
		if p.CreatedAt.Before(before) {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPositions) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var n int64
	for _, p := range m.rows {
		if p.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, p)
	}
	m.rows = kept
	return n, nil
}

func (m *memPositions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memAudit records audit events.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

var _ domain.AuditStore = (*memAudit)(nil)

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{ID: int64(len(m.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

func (m *memAudit) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Event
	}
	return out
}

// recordingNotifier records notification events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

var _ Notifier = (*recordingNotifier)(nil)

func (r *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
