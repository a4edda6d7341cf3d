package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hunch/internal/deck"
	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/gesture"
	"github.com/alanyoungcy/hunch/internal/platform/marketapi"
)

const (
	// firstPageWait bounds how long a deck read waits for the first page.
	firstPageWait = 15 * time.Second
	sinkBuffer    = 256
)

// DeckConfig configures per-user decks and the headless gesture engine.
type DeckConfig struct {
	PageSize            int
	FetchAheadThreshold int
	StackDepth          int
	CountdownInterval   time.Duration
	Gesture             gesture.Config
	// Viewport is used for releases that do not report their own.
	Viewport gesture.Viewport
	Limits   UserLimits
}

// DeckView is what a client renders for one category tab.
type DeckView struct {
	Category   string               `json:"category"`
	Cards      []marketapi.Card     `json:"cards"`
	Stack      []gesture.CardLayout `json:"stack"`
	Categories []string             `json:"categories"`
	Visible    int                  `json:"visible"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	HasMore    bool                 `json:"hasMore"`
	Loading    bool                 `json:"loading"`
	State      domain.UserState     `json:"state"`
}

// ReleaseRequest is a finished drag over the top card of Category.
type ReleaseRequest struct {
	Category string
	DX, DY   float64
	Viewport gesture.Viewport
}

// ReleaseResult reports what the gesture engine did with a release.
type ReleaseResult struct {
	gesture.Outcome
	Overlay  gesture.Overlay      `json:"overlay"`
	Rotation float64              `json:"rotation"`
	Swipe    *domain.SwipeOutcome `json:"swipe,omitempty"`
	Top      *marketapi.Card      `json:"top,omitempty"`
}

type userDeck struct {
	userID     string
	mgr        *deck.Manager
	countdowns *deck.Countdowns
	// ctx is the deck's own lifetime; cancel ends it.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	// lastUsed is guarded by DeckService.mu.
	lastUsed time.Time
	// commitMu serializes swipe commits so a card is booked once.
	commitMu sync.Mutex
	// exhausted is touched only from the deck goroutine.
	exhausted bool
}

type busMessage struct {
	channel string
	payload []byte
	notice  *notice
}

type notice struct {
	event, title, message string
}

// DeckService owns one deck actor per user, mounts countdown timers for the
// visible stack, and books swipes through PositionService.
type DeckService struct {
	fetcher   domain.PageFetcher
	positions *PositionService
	bus       domain.SignalBus
	notifier  Notifier
	cfg       DeckConfig
	logger    *slog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	sink   chan busMessage
	wg     sync.WaitGroup

	mu    sync.Mutex
	decks map[string]*userDeck
}

// NewDeckService creates the service. bus and notifier may be nil.
func NewDeckService(
	fetcher domain.PageFetcher,
	positions *PositionService,
	bus domain.SignalBus,
	notifier Notifier,
	cfg DeckConfig,
	logger *slog.Logger,
) *DeckService {
	if cfg.StackDepth <= 0 {
		cfg.StackDepth = 3
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		cfg.Viewport = gesture.Viewport{Width: 390, Height: 844}
	}
	cfg.Limits = cfg.Limits.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &DeckService{
		fetcher:   fetcher,
		positions: positions,
		bus:       bus,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "deck_service")),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		sink:      make(chan busMessage, sinkBuffer),
		decks:     make(map[string]*userDeck),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Run evicts idle decks until ctx ends, then stops every deck.
func (s *DeckService) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Limits.sweepEvery())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case <-t.C:
			if n := s.EvictIdle(); n > 0 {
				s.logger.Info("deck_service: evicted idle decks", slog.Int("count", n))
			}
		}
	}
}

// EvictIdle stops the decks not used within the idle timeout and returns
// how many were stopped. A later request starts the user on a fresh deck.
func (s *DeckService) EvictIdle() int {
	cutoff := s.now().Add(-s.cfg.Limits.IdleTimeout)
	var idle []*userDeck
	s.mu.Lock()
	for id, ud := range s.decks {
		if ud.lastUsed.Before(cutoff) {
			idle = append(idle, ud)
			delete(s.decks, id)
		}
	}
	s.mu.Unlock()
	for _, ud := range idle {
		ud.stop()
	}
	return len(idle)
}

// Close stops all decks, their countdowns and the event sink.
func (s *DeckService) Close() {
	s.cancel()
	s.mu.Lock()
	decks := s.decks
	s.decks = make(map[string]*userDeck)
	s.mu.Unlock()
	for _, ud := range decks {
		ud.stop()
	}
	s.wg.Wait()
}

// stop ends the deck goroutine, then its countdowns. Sync only runs on the
// deck goroutine, so no timer starts after Stop.
func (ud *userDeck) stop() {
	ud.cancel()
	<-ud.done
	ud.countdowns.Stop()
}

// ActiveDecks is the number of users with a live deck.
func (s *DeckService) ActiveDecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decks)
}

// deck returns the user's deck, starting it on first use.
func (s *DeckService) deck(userID string) (*userDeck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil, deck.ErrStopped
	}
	now := s.now()
	if ud, ok := s.decks[userID]; ok {
		ud.lastUsed = now
		return ud, nil
	}
	if len(s.decks) >= s.cfg.Limits.MaxUsers {
		return nil, fmt.Errorf("%d active decks: %w", len(s.decks), domain.ErrRateLimited)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	ud := &userDeck{userID: userID, ctx: ctx, cancel: cancel, done: make(chan struct{}), lastUsed: now}
	ud.countdowns = deck.NewCountdowns(ctx, s.cfg.CountdownInterval, func(marketID, text string) {
		s.emit(domain.ChannelCountdown+":"+userID, domain.CountdownTick{
			UserID:   userID,
			MarketID: marketID,
			Text:     text,
		}, nil)
	})
	ud.mgr = deck.New(s.fetcher, deck.Options{
		PageSize:            s.cfg.PageSize,
		FetchAheadThreshold: s.cfg.FetchAheadThreshold,
		Logger:              s.logger.With(slog.String("user_id", userID)),
		OnChange:            func(snap deck.Snapshot) { s.onChange(ud, snap) },
	})
	s.decks[userID] = ud

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(ud.done)
		if err := ud.mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("deck_service: deck stopped",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return ud, nil
}

// onChange runs on the deck goroutine and must not block.
func (s *DeckService) onChange(ud *userDeck, snap deck.Snapshot) {
	visible := snap.Visible(deck.AllCategories)
	mounted := visible[:min(len(visible), s.cfg.StackDepth)]
	ud.countdowns.Sync(mounted)

	top := make([]string, len(mounted))
	for i, m := range mounted {
		top[i] = m.ID
	}
	s.emit(domain.ChannelDeck+":"+ud.userID, domain.DeckEvent{
		Type:    "deck",
		UserID:  ud.userID,
		Visible: snap.VisibleCount(),
		Total:   snap.Total,
		HasMore: snap.HasMore,
		Loading: snap.Loading,
		Page:    snap.Page,
		Top:     top,
	}, nil)

	exhausted := snap.VisibleCount() == 0 && !snap.HasMore && !snap.Loading
	if exhausted && !ud.exhausted {
		s.emit("", nil, &notice{
			event:   EventDeckExhausted,
			title:   "Deck exhausted",
			message: fmt.Sprintf("user %s has swiped every market (%d loaded)", ud.userID, snap.Total),
		})
	}
	ud.exhausted = exhausted
}

// emit queues a bus message or notice. A full queue drops the message.
func (s *DeckService) emit(channel string, v any, n *notice) {
	msg := busMessage{channel: channel, notice: n}
	if v != nil {
		payload, err := json.Marshal(v)
		if err != nil {
			return
		}
		msg.payload = payload
	}
	select {
	case s.sink <- msg:
	default:
		s.logger.Warn("deck_service: event dropped", slog.String("channel", channel))
	}
}

func (s *DeckService) drain() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.sink:
			if msg.notice != nil && s.notifier != nil {
				if err := s.notifier.Notify(s.ctx, msg.notice.event, msg.notice.title, msg.notice.message); err != nil {
					s.logger.Warn("deck_service: notify failed", slog.String("error", err.Error()))
				}
			}
			if msg.channel != "" && s.bus != nil {
				if err := s.bus.Publish(s.ctx, msg.channel, msg.payload); err != nil {
					s.logger.Warn("deck_service: publish failed",
						slog.String("channel", msg.channel),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// snapshot returns the user's deck, waiting for the first page when the deck
// was just created.
func (s *DeckService) snapshot(ctx context.Context, ud *userDeck) deck.Snapshot {
	snap := ud.mgr.Snapshot()
	if snap.Page >= 0 || !snap.HasMore {
		return snap
	}
	ctx, cancel := context.WithTimeout(ctx, firstPageWait)
	defer cancel()
	snap, _ = ud.mgr.Wait(ctx, func(sn deck.Snapshot) bool {
		return sn.Page >= 0 || !sn.HasMore
	})
	return snap
}

func (s *DeckService) view(userID, category string, snap deck.Snapshot) DeckView {
	if category == "" {
		category = deck.AllCategories
	}
	visible := snap.Visible(category)
	cards := make([]marketapi.Card, len(visible))
	for i, m := range visible {
		cards[i] = marketapi.NewCard(m)
	}
	return DeckView{
		Category:   category,
		Cards:      cards,
		Stack:      gesture.StackLayout(len(visible), s.cfg.StackDepth),
		Categories: snap.Categories(),
		Visible:    len(visible),
		Total:      snap.Total,
		Page:       snap.Page,
		HasMore:    snap.HasMore,
		Loading:    snap.Loading,
		State:      s.positions.State(userID),
	}
}

// Deck returns the user's deck filtered to category.
func (s *DeckService) Deck(ctx context.Context, userID, category string) (DeckView, error) {
	ud, err := s.deck(userID)
	if err != nil {
		return DeckView{}, fmt.Errorf("deck_service: %w", err)
	}
	return s.view(userID, category, s.snapshot(ctx, ud)), nil
}

// Categories returns "All" plus the sorted categories loaded so far.
func (s *DeckService) Categories(ctx context.Context, userID string) ([]string, error) {
	ud, err := s.deck(userID)
	if err != nil {
		return nil, fmt.Errorf("deck_service: %w", err)
	}
	return s.snapshot(ctx, ud).Categories(), nil
}

// Card returns one undecided market as a card.
func (s *DeckService) Card(ctx context.Context, userID, marketID string) (marketapi.Card, error) {
	ud, err := s.deck(userID)
	if err != nil {
		return marketapi.Card{}, fmt.Errorf("deck_service: %w", err)
	}
	m, ok := findMarket(s.snapshot(ctx, ud), marketID)
	if !ok {
		return marketapi.Card{}, fmt.Errorf("deck_service: market %s: %w", marketID, domain.ErrNotFound)
	}
	return marketapi.NewCard(m), nil
}

func findMarket(snap deck.Snapshot, id string) (domain.Market, bool) {
	for _, m := range snap.Visible(deck.AllCategories) {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Market{}, false
}

// Swipe books a committed swipe on marketID and removes it from the deck.
// The card stays if booking fails.
func (s *DeckService) Swipe(ctx context.Context, userID, marketID string, dir domain.Direction) (domain.SwipeOutcome, error) {
	if !dir.Valid() {
		return domain.SwipeOutcome{}, fmt.Errorf("deck_service: direction %q: %w", dir, domain.ErrInvalidSwipe)
	}
	ud, err := s.deck(userID)
	if err != nil {
		return domain.SwipeOutcome{}, fmt.Errorf("deck_service: %w", err)
	}

	ud.commitMu.Lock()
	defer ud.commitMu.Unlock()

	m, ok := findMarket(s.snapshot(ctx, ud), marketID)
	if !ok {
		return domain.SwipeOutcome{}, fmt.Errorf("deck_service: market %s: %w", marketID, domain.ErrNotFound)
	}
	return s.commit(ctx, ud, dir, m)
}

// commit books m and excludes it. Callers hold ud.commitMu.
func (s *DeckService) commit(ctx context.Context, ud *userDeck, dir domain.Direction, m domain.Market) (domain.SwipeOutcome, error) {
	out, err := s.positions.Record(ctx, domain.SwipeEvent{
		UserID:    ud.userID,
		Direction: dir,
		Market:    m,
	})
	if err != nil {
		return domain.SwipeOutcome{}, fmt.Errorf("deck_service: %w", err)
	}
	// The exclusion runs on the deck's context: a booked card must leave the
	// deck even when the request is cancelled.
	if _, err := ud.mgr.Swipe(ud.ctx, m.ID); err != nil {
		return out, fmt.Errorf("deck_service: exclude %s: %w", m.ID, err)
	}
	return out, nil
}

// Release runs a finished drag through the gesture engine against the top
// card of the requested category. A fly-away commits the card that was on
// top when the drag began; anything else leaves the deck unchanged.
func (s *DeckService) Release(ctx context.Context, userID string, req ReleaseRequest) (ReleaseResult, error) {
	ud, err := s.deck(userID)
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("deck_service: %w", err)
	}
	vp := req.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = s.cfg.Viewport
	}

	ud.commitMu.Lock()
	defer ud.commitMu.Unlock()

	top, ok := s.snapshot(ctx, ud).Top(req.Category)
	if !ok {
		return ReleaseResult{}, fmt.Errorf("deck_service: empty deck: %w", domain.ErrNotFound)
	}

	var (
		swiped    *domain.SwipeOutcome
		commitErr error
	)
	engine := gesture.NewEngine(s.cfg.Gesture, vp, gesture.ImmediateAnimator{},
		func(dir domain.Direction, m domain.Market) error {
			out, err := s.commit(ctx, ud, dir, m)
			if err != nil {
				commitErr = err
				return err
			}
			swiped = &out
			return nil
		}, s.logger)

	engine.Begin(&top)
	engine.Move(req.DX, req.DY)
	res := ReleaseResult{
		Overlay:  engine.Overlay(),
		Rotation: engine.Rotation(),
	}
	res.Outcome = engine.Release()
	if commitErr != nil {
		return res, commitErr
	}
	res.Swipe = swiped
	if res.Tap {
		card := marketapi.NewCard(top)
		res.Top = &card
	}
	return res, nil
}

// Reset clears the user's swiped set.
func (s *DeckService) Reset(ctx context.Context, userID string) (DeckView, error) {
	ud, err := s.deck(userID)
	if err != nil {
		return DeckView{}, fmt.Errorf("deck_service: %w", err)
	}
	snap, err := ud.mgr.Reset(ctx)
	if err != nil {
		return DeckView{}, fmt.Errorf("deck_service: reset: %w", err)
	}
	return s.view(userID, "", snap), nil
}

// Reload refetches from the first page.
func (s *DeckService) Reload(ctx context.Context, userID string) (DeckView, error) {
	ud, err := s.deck(userID)
	if err != nil {
		return DeckView{}, fmt.Errorf("deck_service: %w", err)
	}
	snap, err := ud.mgr.Reload(ctx)
	if err != nil {
		return DeckView{}, fmt.Errorf("deck_service: reload: %w", err)
	}
	return s.view(userID, "", snap), nil
}
