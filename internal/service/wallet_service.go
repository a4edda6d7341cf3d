package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/wallet"
)

// defaultApprovalTTL bounds a session approval, owner prompt included.
const defaultApprovalTTL = 2 * time.Minute

// LifecycleBuilder creates the wallet lifecycle for one user.
type LifecycleBuilder func(userID string) *wallet.Lifecycle

// WalletService keeps one wallet lifecycle per user. Session approvals are
// serialized per user across processes through the lock manager, and every
// transition is audited.
type WalletService struct {
	build       LifecycleBuilder
	locks       domain.LockManager
	audit       domain.AuditStore
	notifier    Notifier
	bus         domain.SignalBus
	approvalTTL time.Duration
	limits      UserLimits
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	lifecycles map[string]*userWallet
}

type userWallet struct {
	l        *wallet.Lifecycle
	lastUsed time.Time
}

// NewWalletService creates a WalletService. locks, audit, notifier and bus
// may be nil.
func NewWalletService(
	build LifecycleBuilder,
	locks domain.LockManager,
	audit domain.AuditStore,
	notifier Notifier,
	bus domain.SignalBus,
	limits UserLimits,
	logger *slog.Logger,
) *WalletService {
	return &WalletService{
		build:       build,
		locks:       locks,
		audit:       audit,
		notifier:    notifier,
		bus:         bus,
		approvalTTL: defaultApprovalTTL,
		limits:      limits.withDefaults(),
		logger:      logger.With(slog.String("component", "wallet_service")),
		now:         time.Now,
		lifecycles:  make(map[string]*userWallet),
	}
}

// Run drops idle lifecycles until ctx ends.
func (s *WalletService) Run(ctx context.Context) error {
	t := time.NewTicker(s.limits.sweepEvery())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.EvictIdle(); n > 0 {
				s.logger.Info("wallet_service: evicted idle lifecycles", slog.Int("count", n))
			}
		}
	}
}

// EvictIdle forgets lifecycles not used within the idle timeout. The
// session stays in the vault, so the next access restores it without a
// prompt.
func (s *WalletService) EvictIdle() int {
	cutoff := s.now().Add(-s.limits.IdleTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, uw := range s.lifecycles {
		if uw.lastUsed.Before(cutoff) {
			delete(s.lifecycles, id)
			n++
		}
	}
	return n
}

func approvalLockKey(userID string) string {
	return "approve:" + userID
}

func (s *WalletService) lifecycle(userID string) (*wallet.Lifecycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if uw, ok := s.lifecycles[userID]; ok {
		uw.lastUsed = now
		return uw.l, nil
	}
	if len(s.lifecycles) >= s.limits.MaxUsers {
		return nil, fmt.Errorf("wallet_service: %d active wallets: %w", len(s.lifecycles), domain.ErrRateLimited)
	}
	l := s.build(userID)
	s.lifecycles[userID] = &userWallet{l: l, lastUsed: now}
	return l, nil
}

// ready returns the user's lifecycle after running setup if it has not
// reached an account yet. Setup never prompts.
func (s *WalletService) ready(ctx context.Context, userID string) (*wallet.Lifecycle, error) {
	l, err := s.lifecycle(userID)
	if err != nil {
		return nil, err
	}
	switch l.Status().State {
	case domain.WalletStateNoWallet, domain.WalletStateWalletCreated,
		domain.WalletStateNetworkVerified, domain.WalletStateError:
		st, err := l.Setup(ctx)
		if err != nil {
			return l, fmt.Errorf("wallet_service: setup %s: %w", userID, err)
		}
		s.record(ctx, "wallet.setup", st)
	}
	return l, nil
}

// Setup runs wallet, network and restore-or-create for the user.
func (s *WalletService) Setup(ctx context.Context, userID string) (domain.WalletStatus, error) {
	l, err := s.ready(ctx, userID)
	if l == nil {
		return domain.WalletStatus{UserID: userID}, err
	}
	return l.Status(), err
}

// Status reports the user's lifecycle, setting it up on first access.
func (s *WalletService) Status(ctx context.Context, userID string) (domain.WalletStatus, error) {
	return s.Setup(ctx, userID)
}

// Balance returns the owner's native balance in ETH.
func (s *WalletService) Balance(ctx context.Context, userID string) (string, error) {
	l, err := s.ready(ctx, userID)
	if err != nil {
		return "", err
	}
	p := l.Provider()
	if p == nil {
		return "", domain.ErrNoWallet
	}
	bal, err := wallet.Balance(ctx, p, p.Address())
	if err != nil {
		return "", fmt.Errorf("wallet_service: %w", err)
	}
	return bal, nil
}

// Approve obtains the owner's one-time approval for a new session key.
func (s *WalletService) Approve(ctx context.Context, userID string) (domain.WalletStatus, error) {
	l, err := s.ready(ctx, userID)
	if l == nil {
		return domain.WalletStatus{UserID: userID}, err
	}
	if err != nil {
		return l.Status(), err
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, approvalLockKey(userID), s.approvalTTL)
		if err != nil {
			return l.Status(), fmt.Errorf("wallet_service: approve %s: %w", userID, err)
		}
		defer unlock()
	}

	st, err := l.ApproveSessionKey(ctx)
	if err != nil {
		s.record(ctx, "wallet.approval_failed", st)
		if !errors.Is(err, domain.ErrUserRejected) && !errors.Is(err, domain.ErrLockHeld) {
			s.notify(ctx, EventError, "Session approval failed",
				fmt.Sprintf("user %s: %v", userID, err))
		}
		return st, fmt.Errorf("wallet_service: approve %s: %w", userID, err)
	}

	s.record(ctx, "wallet.session_approved", st)
	s.notify(ctx, EventSessionApproved, "Session key approved",
		fmt.Sprintf("user %s account %s via %s", userID, st.Account, st.Factory))
	return st, nil
}

// Reset removes the user's session key.
func (s *WalletService) Reset(ctx context.Context, userID string) (domain.WalletStatus, error) {
	l, err := s.lifecycle(userID)
	if err != nil {
		return domain.WalletStatus{UserID: userID}, err
	}
	st, err := l.ResetSessionKey(ctx)
	if err != nil {
		return st, fmt.Errorf("wallet_service: reset %s: %w", userID, err)
	}
	s.record(ctx, "wallet.session_reset", st)
	s.notify(ctx, EventSessionReset, "Session key reset", "user "+userID)
	return st, nil
}

// Submit sends call from the user's smart account.
func (s *WalletService) Submit(ctx context.Context, userID string, call wallet.Call) (wallet.OperationReceipt, error) {
	l, err := s.ready(ctx, userID)
	if err != nil {
		return wallet.OperationReceipt{}, err
	}
	receipt, err := l.SubmitOperation(ctx, call)
	if err != nil {
		return receipt, fmt.Errorf("wallet_service: submit %s: %w", userID, err)
	}
	s.audited(ctx, "wallet.operation_submitted", map[string]any{
		"user_id":   userID,
		"hash":      receipt.Hash,
		"sender":    receipt.Sender.Hex(),
		"to":        call.To.Hex(),
		"signed_by": receipt.SignedBy,
		"sponsored": receipt.Sponsored,
	})
	return receipt, nil
}

// record audits a lifecycle transition and publishes it to the user's
// wallet channel.
func (s *WalletService) record(ctx context.Context, event string, st domain.WalletStatus) {
	s.audited(ctx, event, map[string]any{
		"user_id":    st.UserID,
		"state":      string(st.State),
		"account":    st.Account,
		"factory":    st.Factory,
		"last_error": st.LastError,
	})
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelWallet+":"+st.UserID, payload); err != nil {
		s.logger.WarnContext(ctx, "wallet_service: publish failed",
			slog.String("user_id", st.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *WalletService) audited(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "wallet_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *WalletService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "wallet_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
