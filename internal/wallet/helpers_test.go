package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

var baseSepolia = Chain{ID: 84532, Name: "Base Sepolia", RPCURL: "https://sepolia.base.org", ExplorerURL: "https://sepolia.basescan.org"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider answers requests from a handler and records methods.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	handler func(method string, params []any) (any, error)
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()
	res, err := f.handler(method, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (f *fakeProvider) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// memKeys is an in-memory KeySource.
type memKeys struct {
	mu   sync.Mutex
	keys map[string]*ecdsa.PrivateKey
}

func newMemKeys() *memKeys { return &memKeys{keys: make(map[string]*ecdsa.PrivateKey)} }

func (m *memKeys) LoadOrCreate(userID string) (*ecdsa.PrivateKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[userID]; ok {
		return k, false, nil
	}
	k, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, false, err
	}
	m.keys[userID] = k
	return k, true, nil
}

// countingApprover approves or rejects and counts prompts.
type countingApprover struct {
	prompts atomic.Int32
	reject  bool
}

func (c *countingApprover) Approve(_ context.Context, _ Prompt) error {
	c.prompts.Add(1)
	if c.reject {
		return RejectAll{}.Approve(context.Background(), Prompt{})
	}
	return nil
}

func bundlerServing(entryPoints ...string) *fakeProvider {
	return &fakeProvider{handler: func(method string, _ []any) (any, error) {
		switch method {
		case "eth_supportedEntryPoints":
			return entryPoints, nil
		case "eth_sendUserOperation":
			return "0xfeed", nil
		}
		return nil, &ProviderError{Code: -32601, Message: "method not found"}
	}}
}

func chainRPC() *fakeProvider {
	return &fakeProvider{handler: func(method string, _ []any) (any, error) {
		switch method {
		case "eth_getCode":
			return "0x", nil
		case "eth_gasPrice":
			return "0x3b9aca00", nil
		case "eth_getBalance":
			return "0x14d1120d7b160000", nil
		}
		return nil, &ProviderError{Code: -32601, Message: "method not found"}
	}}
}

type fixture struct {
	keys     *memKeys
	vault    *MemoryVault
	approver *countingApprover
	bundler  *fakeProvider
	chain    *fakeProvider
	now      time.Time
}

func newFixture() *fixture {
	return &fixture{
		keys:     newMemKeys(),
		vault:    NewMemoryVault(),
		approver: &countingApprover{},
		bundler:  bundlerServing(EntryPointV07.Hex(), EntryPointV06.Hex()),
		chain:    chainRPC(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) lifecycle(t *testing.T, policy Policy) *Lifecycle {
	t.Helper()
	return NewLifecycle(Options{
		UserID:    "alice",
		Chain:     baseSepolia,
		ProjectID: "proj",
		Validity:  30 * 24 * time.Hour,
		Policy:    policy,
		Keys:      f.keys,
		Store:     NewScopedStore(f.vault, "hunch.sessionKey.serialized.v1"),
		Factories: []AccountFactory{
			NewKernelV31(KernelFactoryV31, "", f.bundler),
			NewKernelV24(f.bundler),
			&ManualApproval{Factory: KernelFactoryV31, EntryPoint: EntryPointV07, InitCodeHash: InitCodeHash(KernelFactoryV31, "")},
		},
		Approver: f.approver,
		Dial: func(context.Context, string) (Provider, error) {
			return f.chain, nil
		},
		Bundler: f.bundler,
		Logger:  discardLogger(),
		Now:     func() time.Time { return f.now },
	})
}

func setup(t *testing.T, l *Lifecycle) domain.WalletStatus {
	t.Helper()
	st, err := l.Setup(context.Background())
	require.NoError(t, err)
	return st
}
