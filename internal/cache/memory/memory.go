// Package memory provides in-process stand-ins for the Redis-backed bus and
// lock so a single instance runs without Redis.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

const (
	subscriberBuffer = 128
	streamMaxLen     = 10000
)

type subscriber struct {
	pattern string
	ch      chan []byte
}

// SignalBus implements domain.SignalBus in memory. Slow subscribers drop
// messages rather than block publishers.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string][]domain.StreamMessage
	seq     uint64
}

// NewSignalBus returns an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]domain.StreamMessage),
	}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe accepts the same glob patterns as Redis PSUBSCRIBE for the
// common cases ("*", "?", "[...]").
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, err)
	}
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq, 10),
		Payload: append([]byte(nil), payload...),
	})
	if len(msgs) > streamMaxLen {
		msgs = msgs[len(msgs)-streamMaxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries after lastID. IDs are decimal
// sequence numbers; "0" and "0-0" read from the start.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := uint64(0)
	if lastID != "0" && lastID != "0-0" && lastID != "" {
		n, err := strconv.ParseUint(lastID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("memory: stream read %s: bad id %q", stream, lastID)
		}
		after = n
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseUint(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// LockManager implements domain.LockManager for a single process.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]uint64
	seq   uint64
	now   func() time.Time
	until map[string]time.Time
}

// NewLockManager returns an empty lock table.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]uint64),
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Acquire takes key for ttl or fails with domain.ErrLockHeld. An expired
// holder loses the lock to the next caller.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.held[key]; ok && lm.now().Before(lm.until[key]) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	lm.seq++
	token := lm.seq
	lm.held[key] = token
	lm.until[key] = lm.now().Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.held[key] == token {
				delete(lm.held, key)
				delete(lm.until, key)
			}
		})
	}, nil
}

var (
	_ domain.SignalBus   = (*SignalBus)(nil)
	_ domain.LockManager = (*LockManager)(nil)
)
