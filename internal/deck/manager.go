// Package deck owns the ordered list of undecided markets for one user: page
// loading with fetch-ahead, the swiped exclusion set, and category views.
//
// All mutations run on a single goroutine (Run) fed by one inbox, so a swipe
// commit and a page append arriving in the same instant are applied in order
// and neither is lost. Reads are served from an immutable snapshot published
// after every mutation.
package deck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// Defaults used when Options leaves a field zero or negative.
const (
	DefaultPageSize            = 20
	DefaultFetchAheadThreshold = 2
)

// ErrStopped is returned by commands issued after Run has returned.
var ErrStopped = errors.New("deck: manager stopped")

// Options configures a Manager.
type Options struct {
	PageSize            int
	FetchAheadThreshold int
	Logger              *slog.Logger
	// OnChange is called on the deck goroutine after every state change. It
	// must not block or call back into the Manager's commands.
	OnChange func(Snapshot)
}

// Manager is a single deck. Create it with New and drive it with Run.
type Manager struct {
	fetcher   domain.PageFetcher
	pageSize  int
	threshold int
	logger    *slog.Logger
	onChange  func(Snapshot)

	inbox   chan request
	stopped chan struct{}

	// Owned by the Run goroutine.
	st state

	mu      sync.RWMutex // guards snap and changed; used only for external reads
	snap    Snapshot
	changed chan struct{}
}

type command func(ctx context.Context, st *state)

// request is one inbox entry. reply, when set, receives the snapshot
// published after the command ran.
type request struct {
	fn    command
	reply chan Snapshot
}

type state struct {
	markets  []domain.Market
	present  map[string]struct{}
	excluded map[string]struct{}
	page     int // last page applied, -1 before the first load
	hasMore  bool
	loading  bool
	gen      uint64 // bumped by Reload to discard stale fetch results
}

// New creates a deck manager backed by fetcher.
func New(fetcher domain.PageFetcher, opts Options) *Manager {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.FetchAheadThreshold <= 0 {
		opts.FetchAheadThreshold = DefaultFetchAheadThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		fetcher:   fetcher,
		pageSize:  opts.PageSize,
		threshold: opts.FetchAheadThreshold,
		logger:    opts.Logger.With(slog.String("component", "deck")),
		onChange:  opts.OnChange,
		inbox:     make(chan request, 64),
		stopped:   make(chan struct{}),
		st: state{
			present:  make(map[string]struct{}),
			excluded: make(map[string]struct{}),
			page:     -1,
			hasMore:  true,
		},
		changed: make(chan struct{}),
	}
	m.snap = m.st.snapshot()
	return m
}

// Run processes commands until ctx is cancelled. It must be called exactly
// once, in its own goroutine. The first page is requested immediately.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.stopped)

	m.evaluate(ctx)
	m.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-m.inbox:
			req.fn(ctx, &m.st)
			m.evaluate(ctx)
			snap := m.publish()
			if req.reply != nil {
				req.reply <- snap
			}
		}
	}
}

// Swipe excludes a market from the deck. Excluding an id twice is a no-op.
func (m *Manager) Swipe(ctx context.Context, marketID string) (Snapshot, error) {
	return m.do(ctx, func(_ context.Context, st *state) {
		st.excluded[marketID] = struct{}{}
	})
}

// Reset clears the exclusion set. Pagination is untouched and nothing is
// refetched.
func (m *Manager) Reset(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, func(_ context.Context, st *state) {
		if len(st.excluded) > 0 {
			st.excluded = make(map[string]struct{})
		}
	})
}

// Reload discards loaded markets and exclusions and fetches page 0 again.
// A deck already known to be exhausted stays exhausted.
func (m *Manager) Reload(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, func(ctx context.Context, st *state) {
		st.gen++
		st.markets = nil
		st.present = make(map[string]struct{})
		st.excluded = make(map[string]struct{})
		st.page = -1
		st.loading = false
		m.startFetch(ctx, st, 0)
	})
}

// Snapshot returns the latest published deck state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Wait blocks until cond holds for the published snapshot or ctx ends.
func (m *Manager) Wait(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		m.mu.RLock()
		snap, ch := m.snap, m.changed
		m.mu.RUnlock()

		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-m.stopped:
			return snap, ErrStopped
		case <-ch:
		}
	}
}

// do runs fn on the deck goroutine and returns the snapshot published
// right after it.
func (m *Manager) do(ctx context.Context, fn command) (Snapshot, error) {
	req := request{fn: fn, reply: make(chan Snapshot, 1)}
	select {
	case m.inbox <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-m.stopped:
		return Snapshot{}, ErrStopped
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-m.stopped:
		return Snapshot{}, ErrStopped
	}
}

// evaluate applies the fetch-ahead policy. It is level-triggered: it runs
// after every state change and fetches the next page whenever the visible
// deck is low, more pages exist, and no fetch is in flight.
func (m *Manager) evaluate(ctx context.Context) {
	st := &m.st
	if st.loading || !st.hasMore {
		return
	}
	if st.visibleCount() > m.threshold {
		return
	}
	m.startFetch(ctx, st, st.page+1)
}

// startFetch marks the deck loading and fetches page in the background. The
// result comes back through the inbox.
func (m *Manager) startFetch(ctx context.Context, st *state, page int) {
	st.loading = true
	gen := st.gen
	limit, offset := m.pageSize, page*m.pageSize

	go func() {
		result := m.safeFetch(ctx, limit, offset)
		apply := func(ctx context.Context, st *state) {
			m.applyPage(st, gen, page, result)
		}
		select {
		case m.inbox <- request{fn: apply}:
		case <-ctx.Done():
		}
	}()
}

func (m *Manager) safeFetch(ctx context.Context, limit, offset int) (page domain.Page) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("deck: page fetch panicked",
				slog.Int("offset", offset),
				slog.String("error", fmt.Sprint(r)),
			)
			page = domain.Page{}
		}
	}()
	return m.fetcher.FetchPage(ctx, limit, offset)
}

func (m *Manager) applyPage(st *state, gen uint64, page int, result domain.Page) {
	if gen != st.gen {
		m.logger.Debug("deck: dropping stale page", slog.Int("page", page))
		return
	}
	st.loading = false
	st.page = page

	added := 0
	for _, card := range result.Cards {
		if card.ID != "" {
			if _, dup := st.present[card.ID]; dup {
				continue
			}
			st.present[card.ID] = struct{}{}
		}
		st.markets = append(st.markets, card)
		added++
	}

	if result.FetchedCount < m.pageSize {
		if st.hasMore {
			m.logger.Info("deck: no more pages",
				slog.Int("page", page),
				slog.Int("fetched", result.FetchedCount),
			)
		}
		st.hasMore = false
	}

	m.logger.Debug("deck: page applied",
		slog.Int("page", page),
		slog.Int("fetched", result.FetchedCount),
		slog.Int("added", added),
		slog.Int("total", len(st.markets)),
	)
}

func (m *Manager) publish() Snapshot {
	snap := m.st.snapshot()

	m.mu.Lock()
	m.snap = snap
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(snap)
	}
	return snap
}

func (st *state) visibleCount() int {
	n := 0
	for i := range st.markets {
		if _, gone := st.excluded[st.markets[i].ID]; !gone {
			n++
		}
	}
	return n
}

func (st *state) snapshot() Snapshot {
	visible := make([]domain.Market, 0, len(st.markets))
	for _, mk := range st.markets {
		if _, gone := st.excluded[mk.ID]; !gone {
			visible = append(visible, mk)
		}
	}
	return Snapshot{
		visible:    visible,
		categories: categories(st.markets),
		Total:      len(st.markets),
		Excluded:   len(st.excluded),
		Page:       st.page,
		HasMore:    st.hasMore,
		Loading:    st.loading,
	}
}
