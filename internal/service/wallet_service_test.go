package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/cache/memory"
	"github.com/alanyoungcy/hunch/internal/crypto"
	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/wallet"
)

// chainStub answers the upstream RPC calls the lifecycle makes.
type chainStub struct{}

func (chainStub) Request(_ context.Context, method string, _ ...any) (json.RawMessage, error) {
	switch method {
	case "eth_getBalance":
		return json.Marshal("0x14d1120d7b160000")
	case "eth_getCode":
		return json.Marshal("0x")
	}
	return nil, &wallet.ProviderError{Code: -32601, Message: "method not found"}
}

type walletFixture struct {
	svc      *WalletService
	audit    *memAudit
	notifier *recordingNotifier
	bus      *memory.SignalBus
	locks    *memory.LockManager
}

func newWalletFixture(t *testing.T, approver wallet.Approver) *walletFixture {
	t.Helper()
	return newLimitedWalletFixture(t, approver, UserLimits{})
}

func newLimitedWalletFixture(t *testing.T, approver wallet.Approver, limits UserLimits) *walletFixture {
	t.Helper()
	keys, err := crypto.NewKeystore(t.TempDir(), "pw")
	require.NoError(t, err)
	vault := wallet.NewMemoryVault()
	chain := wallet.Chain{ID: 84532, Name: "Base Sepolia", RPCURL: "http://rpc.invalid"}

	build := func(userID string) *wallet.Lifecycle {
		return wallet.NewLifecycle(wallet.Options{
			UserID:   userID,
			Chain:    chain,
			Validity: 24 * time.Hour,
			Keys:     keys,
			Store:    wallet.NewScopedStore(vault, wallet.SessionKeyFor("hunch.sessionKey.serialized.v1", userID)),
			Factories: []wallet.AccountFactory{
				&wallet.ManualApproval{
					Factory:      wallet.KernelFactoryV31,
					EntryPoint:   wallet.EntryPointV07,
					InitCodeHash: wallet.InitCodeHash(wallet.KernelFactoryV31, ""),
				},
			},
			Approver: approver,
			Dial: func(context.Context, string) (wallet.Provider, error) {
				return chainStub{}, nil
			},
			Logger: discardLogger(),
		})
	}

	f := &walletFixture{
		audit:    &memAudit{},
		notifier: &recordingNotifier{},
		bus:      memory.NewSignalBus(),
		locks:    memory.NewLockManager(),
	}
	f.svc = NewWalletService(build, f.locks, f.audit, f.notifier, f.bus, limits, discardLogger())
	return f
}

func TestWalletService_Status(t *testing.T) {
	f := newWalletFixture(t, wallet.AutoApprover{})
	ctx := context.Background()

	st, err := f.svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStateNeedsApproval, st.State)
	assert.NotEmpty(t, st.Owner)
	assert.NotEmpty(t, st.Account)

	again, err := f.svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, st.Owner, again.Owner)
	assert.Equal(t, []string{"wallet.setup"}, f.audit.events())

	bob, err := f.svc.Status(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, st.Owner, bob.Owner)
}

func TestWalletService_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("approval audits notifies and publishes", func(t *testing.T) {
		f := newWalletFixture(t, wallet.AutoApprover{})
		updates, err := f.bus.Subscribe(ctx, domain.ChannelWallet+":alice")
		require.NoError(t, err)

		st, err := f.svc.Approve(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.WalletStateSessionApproved, st.State)
		assert.True(t, st.State.PopupFree())
		assert.Contains(t, f.audit.events(), "wallet.session_approved")
		assert.Equal(t, []string{EventSessionApproved}, f.notifier.got())

		select {
		case msg := <-updates:
			var got domain.WalletStatus
			require.NoError(t, json.Unmarshal(msg, &got))
			assert.Equal(t, "alice", got.UserID)
		case <-time.After(time.Second):
			t.Fatal("no wallet update published")
		}
	})

	t.Run("rejection is not an error notification", func(t *testing.T) {
		f := newWalletFixture(t, wallet.RejectAll{})
		st, err := f.svc.Approve(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrUserRejected)
		assert.Equal(t, domain.WalletStateNeedsApproval, st.State)
		assert.Empty(t, f.notifier.got())
		assert.Contains(t, f.audit.events(), "wallet.approval_failed")
	})

	t.Run("held approval lock", func(t *testing.T) {
		f := newWalletFixture(t, wallet.AutoApprover{})
		unlock, err := f.locks.Acquire(ctx, approvalLockKey("alice"), time.Minute)
		require.NoError(t, err)
		defer unlock()

		_, err = f.svc.Approve(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrLockHeld)
	})
}

func TestWalletService_Reset(t *testing.T) {
	f := newWalletFixture(t, wallet.AutoApprover{})
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, "alice")
	require.NoError(t, err)

	st, err := f.svc.Reset(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStateNeedsApproval, st.State)
	assert.Contains(t, f.notifier.got(), EventSessionReset)
	assert.Contains(t, f.audit.events(), "wallet.session_reset")
}

func TestWalletService_Balance(t *testing.T) {
	f := newWalletFixture(t, wallet.AutoApprover{})
	bal, err := f.svc.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal)
}

func TestWalletService_EvictIdleRestoresSession(t *testing.T) {
	f := newLimitedWalletFixture(t, wallet.AutoApprover{}, UserLimits{IdleTimeout: time.Minute})
	ctx := context.Background()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	approved, err := f.svc.Approve(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.WalletStateSessionApproved, approved.State)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, f.svc.EvictIdle())
	assert.Zero(t, f.svc.EvictIdle())

	st, err := f.svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStateSessionRestored, st.State)
	assert.Equal(t, approved.Owner, st.Owner)
	assert.Equal(t, approved.Account, st.Account)
}

func TestWalletService_MaxUsers(t *testing.T) {
	f := newLimitedWalletFixture(t, wallet.AutoApprover{}, UserLimits{IdleTimeout: time.Minute, MaxUsers: 1})
	ctx := context.Background()

	_, err := f.svc.Status(ctx, "alice")
	require.NoError(t, err)

	st, err := f.svc.Status(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, "bob", st.UserID)

	_, err = f.svc.Approve(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	_, err = f.svc.Reset(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
