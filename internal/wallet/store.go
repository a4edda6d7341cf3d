package wallet

import (
	"context"
	"sync"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// SessionKeyFor returns the vault key for a user's session. The default
// user keeps the bare base key.
func SessionKeyFor(base, userID string) string {
	if userID == "" || userID == "default" {
		return base
	}
	return base + ":" + userID
}

// ScopedStore binds a vault and key into a single-slot SessionStore.
type ScopedStore struct {
	vault domain.SessionVault
	key   string
}

var _ domain.SessionStore = (*ScopedStore)(nil)

// NewScopedStore returns a store for key in vault.
func NewScopedStore(vault domain.SessionVault, key string) *ScopedStore {
	return &ScopedStore{vault: vault, key: key}
}

// Get implements domain.SessionStore.
func (s *ScopedStore) Get(ctx context.Context) (string, error) {
	return s.vault.Load(ctx, s.key)
}

// Set implements domain.SessionStore.
func (s *ScopedStore) Set(ctx context.Context, blob string) error {
	return s.vault.Save(ctx, s.key, blob)
}

// Clear implements domain.SessionStore.
func (s *ScopedStore) Clear(ctx context.Context) error {
	return s.vault.Delete(ctx, s.key)
}

// MemoryVault keeps blobs in process memory.
type MemoryVault struct {
	mu    sync.RWMutex
	blobs map[string]string
}

var _ domain.SessionVault = (*MemoryVault)(nil)

// NewMemoryVault returns an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{blobs: make(map[string]string)}
}

// Load implements domain.SessionVault.
func (m *MemoryVault) Load(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return "", domain.ErrNoSession
	}
	return b, nil
}

// Save implements domain.SessionVault.
func (m *MemoryVault) Save(_ context.Context, key, blob string) error {
	m.mu.Lock()
	m.blobs[key] = blob
	m.mu.Unlock()
	return nil
}

// Delete implements domain.SessionVault.
func (m *MemoryVault) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}
