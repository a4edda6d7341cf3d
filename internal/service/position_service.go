package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// PositionConfig sets the demo book parameters.
type PositionConfig struct {
	StartingBalance decimal.Decimal
	// DefaultStake is used when a market carries no price.
	DefaultStake  decimal.Decimal
	XPPerPosition int
}

// PositionService turns committed swipes into positions against a per-user
// demo balance.
type PositionService struct {
	positions domain.PositionStore
	bus       domain.SignalBus
	cfg       PositionConfig
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*domain.UserState
}

// NewPositionService creates a PositionService. bus may be nil.
func NewPositionService(
	positions domain.PositionStore,
	bus domain.SignalBus,
	cfg PositionConfig,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "positions")),
		now:       time.Now,
		users:     make(map[string]*domain.UserState),
	}
}

// userLocked returns the user's state, creating it with the starting
// balance. Callers hold s.mu.
func (s *PositionService) userLocked(userID string) *domain.UserState {
	st, ok := s.users[userID]
	if !ok {
		st = &domain.UserState{UserID: userID, Balance: s.cfg.StartingBalance}
		s.users[userID] = st
	}
	return st
}

// State returns a copy of the user's book.
func (s *PositionService) State(userID string) domain.UserState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.userLocked(userID)
}

// Stake is the amount a YES or NO swipe commits on m.
func (s *PositionService) Stake(m domain.Market) decimal.Decimal {
	stake := decimal.NewFromFloat(m.Price)
	if !stake.IsPositive() {
		return s.cfg.DefaultStake
	}
	return stake
}

// Record applies a committed swipe. Right opens YES, left opens NO, down
// passes. A stake larger than the balance is recorded as a pass.
func (s *PositionService) Record(ctx context.Context, ev domain.SwipeEvent) (domain.SwipeOutcome, error) {
	if !ev.Direction.Valid() {
		return domain.SwipeOutcome{}, fmt.Errorf("position_service: direction %q: %w", ev.Direction, domain.ErrInvalidSwipe)
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	out := domain.SwipeOutcome{Event: ev, Side: ev.Direction.Side()}
	stake := s.Stake(ev.Market)

	s.mu.Lock()
	st := s.userLocked(ev.UserID)
	if out.Side != domain.SidePass && st.Balance.LessThan(stake) {
		out.Side = domain.SidePass
		out.Reason = domain.ErrInsufficientBalance.Error()
	}
	if out.Side == domain.SidePass {
		st.Passes++
		out.State = *st
		s.mu.Unlock()
		s.journal(ctx, out)
		return out, nil
	}
	// Reserve the stake before the store call so concurrent swipes cannot
	// overdraw.
	st.Balance = st.Balance.Sub(stake)
	s.mu.Unlock()

	pos := domain.Position{
		ID:              uuid.NewString(),
		UserID:          ev.UserID,
		MarketID:        ev.Market.ID,
		Question:        ev.Market.Question,
		Side:            out.Side,
		Stake:           stake,
		EntryYesPercent: ev.Market.YesPercent,
		CreatedAt:       ev.At.UTC(),
	}
	if err := s.positions.Create(ctx, pos); err != nil {
		s.mu.Lock()
		st.Balance = st.Balance.Add(stake)
		s.mu.Unlock()
		return domain.SwipeOutcome{}, fmt.Errorf("position_service: create position: %w", err)
	}

	s.mu.Lock()
	st.XP += s.cfg.XPPerPosition
	st.Positions++
	out.State = *st
	s.mu.Unlock()
	out.Position = &pos

	s.logger.InfoContext(ctx, "position_service: position opened",
		slog.String("user_id", pos.UserID),
		slog.String("market_id", pos.MarketID),
		slog.String("side", string(pos.Side)),
		slog.String("stake", pos.Stake.String()),
	)
	s.journal(ctx, out)
	return out, nil
}

// journal appends the outcome to the swipe stream. Failures are logged only.
func (s *PositionService) journal(ctx context.Context, out domain.SwipeOutcome) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamSwipes, payload); err != nil {
		s.logger.WarnContext(ctx, "position_service: journal append failed",
			slog.String("user_id", out.Event.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// List returns the user's positions, newest first.
func (s *PositionService) List(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list %s: %w", userID, err)
	}
	return positions, nil
}

// Journal replays committed swipes after lastID.
func (s *PositionService) Journal(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if s.bus == nil {
		return nil, nil
	}
	msgs, err := s.bus.StreamRead(ctx, domain.StreamSwipes, lastID, count)
	if err != nil {
		return nil, fmt.Errorf("position_service: journal read: %w", err)
	}
	return msgs, nil
}
