package domain

import (
	"context"
	"time"
)

// SessionStore holds at most one serialized session blob. Get returns
// ErrNoSession when nothing is stored.
type SessionStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, blob string) error
	Clear(ctx context.Context) error
}

// SessionVault is a keyed blob store backing one SessionStore per user.
// Load returns ErrNoSession for a missing key.
type SessionVault interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, blob string) error
	Delete(ctx context.Context, key string) error
}

// WalletState is the lifecycle position of a user's smart account.
type WalletState string

const (
	WalletStateNoWallet        WalletState = "no-wallet"
	WalletStateWalletCreated   WalletState = "wallet-created"
	WalletStateNetworkVerified WalletState = "network-verified"
	WalletStateSessionRestored WalletState = "session-restored"
	WalletStateNeedsApproval   WalletState = "needs-approval"
	WalletStateSessionApproved WalletState = "session-approved"
	WalletStateError           WalletState = "error"
)

// PopupFree reports whether transactions can be signed without prompting.
func (s WalletState) PopupFree() bool {
	return s == WalletStateSessionRestored || s == WalletStateSessionApproved
}

// WalletStatus is a snapshot of a user's wallet lifecycle.
type WalletStatus struct {
	UserID         string      `json:"userId"`
	State          WalletState `json:"state"`
	NeedsApproval  bool        `json:"needsApproval"`
	Owner          string      `json:"owner,omitempty"`
	Account        string      `json:"account,omitempty"`
	SessionAddress string      `json:"sessionAddress,omitempty"`
	Factory        string      `json:"factory,omitempty"`
	ChainID        string      `json:"chainId,omitempty"`
	ChainName      string      `json:"chainName,omitempty"`
	ValidUntil     *time.Time  `json:"validUntil,omitempty"`
	LastError      string      `json:"lastError,omitempty"`
}
