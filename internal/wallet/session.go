package wallet

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/hunch/internal/crypto"
	"github.com/alanyoungcy/hunch/internal/domain"
)

// SessionBlobVersion is the current serialized session schema.
const SessionBlobVersion = 1

// ApprovalKind names what the owner signed to authorize a session key.
type ApprovalKind string

const (
	ApprovalTypedData ApprovalKind = "typed_data"
	ApprovalPersonal  ApprovalKind = "personal_sign"
)

// SessionBlob is the persisted delegation: the owner's approval over the
// exact ApprovalPayload document, the session private key and its validity
// window. It is stored as base64 JSON.
type SessionBlob struct {
	Version         int            `json:"v"`
	Variant         string         `json:"variant"`
	ChainID         int64          `json:"chainId"`
	Owner           common.Address `json:"owner"`
	Account         common.Address `json:"account"`
	Factory         common.Address `json:"factory"`
	EntryPoint      common.Address `json:"entryPoint"`
	AccountIndex    uint64         `json:"accountIndex"`
	SessionKey      string         `json:"sessionKey"`
	SessionAddress  common.Address `json:"sessionAddress"`
	ValidAfter      int64          `json:"validAfter"`
	ValidUntil      int64          `json:"validUntil"`
	Policy          Policy         `json:"permissions"`
	ApprovalKind    ApprovalKind   `json:"approvalKind"`
	ApprovalPayload string         `json:"approvalPayload"`
	Approval        hexutil.Bytes  `json:"approval"`
	CreatedAt       int64          `json:"createdAt"`
}

// Serialize encodes the blob for a SessionStore.
func (b *SessionBlob) Serialize() (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("wallet: serialize session: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ValidUntilTime returns the expiry as a time.
func (b *SessionBlob) ValidUntilTime() time.Time {
	return time.Unix(b.ValidUntil, 0).UTC()
}

// AccountInfo returns the smart account the blob delegates.
func (b *SessionBlob) AccountInfo() Account {
	return Account{
		Address:    b.Account,
		Owner:      b.Owner,
		Factory:    b.Factory,
		EntryPoint: b.EntryPoint,
		Index:      b.AccountIndex,
	}
}

// DeserializeSession decodes and checks a stored blob without any signer
// interaction: the session key must match its address, the owner's approval
// must recover to the owner, and the window must contain now. An expired
// blob is returned alongside ErrSessionExpired.
func DeserializeSession(s string, now time.Time) (*SessionBlob, *crypto.Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: session encoding: %w", domain.ErrSessionInvalid)
	}
	var b SessionBlob
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, nil, fmt.Errorf("wallet: session json: %w", domain.ErrSessionInvalid)
	}
	if b.Version != SessionBlobVersion {
		return nil, nil, fmt.Errorf("wallet: session version %d: %w", b.Version, domain.ErrSessionInvalid)
	}

	signer, err := crypto.NewSignerFromHex(b.SessionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: session key: %w", domain.ErrSessionInvalid)
	}
	if signer.Address() != b.SessionAddress {
		return nil, nil, fmt.Errorf("wallet: session key does not match %s: %w", b.SessionAddress.Hex(), domain.ErrSessionInvalid)
	}
	if err := b.verifyApproval(); err != nil {
		return nil, nil, err
	}

	if now.Unix() >= b.ValidUntil {
		return &b, nil, fmt.Errorf("wallet: session expired at %s: %w", b.ValidUntilTime().Format(time.RFC3339), domain.ErrSessionExpired)
	}
	return &b, signer, nil
}

func (b *SessionBlob) verifyApproval() error {
	var (
		signer common.Address
		err    error
	)
	switch b.ApprovalKind {
	case ApprovalTypedData:
		var td apitypes.TypedData
		if err := json.Unmarshal([]byte(b.ApprovalPayload), &td); err != nil {
			return fmt.Errorf("wallet: approval payload: %w", domain.ErrSessionInvalid)
		}
		if !b.matchesTypedData(td) {
			return fmt.Errorf("wallet: session fields differ from signed approval: %w", domain.ErrSessionInvalid)
		}
		signer, err = crypto.RecoverTypedData(td, b.Approval)
	case ApprovalPersonal:
		var mp manualPayload
		if err := json.Unmarshal([]byte(b.ApprovalPayload), &mp); err != nil {
			return fmt.Errorf("wallet: approval payload: %w", domain.ErrSessionInvalid)
		}
		if !b.matchesManual(mp) {
			return fmt.Errorf("wallet: session fields differ from signed approval: %w", domain.ErrSessionInvalid)
		}
		signer, err = crypto.RecoverPersonal([]byte(b.ApprovalPayload), b.Approval)
	default:
		return fmt.Errorf("wallet: approval kind %q: %w", b.ApprovalKind, domain.ErrSessionInvalid)
	}
	if err != nil {
		return fmt.Errorf("wallet: approval signature: %w", domain.ErrSessionInvalid)
	}
	if signer != b.Owner {
		return fmt.Errorf("wallet: approval signed by %s, not owner: %w", signer.Hex(), domain.ErrSessionInvalid)
	}
	return nil
}

// matchesTypedData checks the blob against the fields the owner signed.
// The policy is bound through its hash.
func (b *SessionBlob) matchesTypedData(td apitypes.TypedData) bool {
	key, _ := td.Message["sessionKey"].(string)
	after, _ := td.Message["validAfter"].(string)
	until, _ := td.Message["validUntil"].(string)
	perms, _ := td.Message["permissionsHash"].(string)
	if td.Domain.ChainId == nil || (*big.Int)(td.Domain.ChainId).Cmp(big.NewInt(b.ChainID)) != 0 {
		return false
	}
	return strings.EqualFold(key, b.SessionAddress.Hex()) &&
		after == strconv.FormatInt(b.ValidAfter, 10) &&
		until == strconv.FormatInt(b.ValidUntil, 10) &&
		strings.EqualFold(perms, b.Policy.Hash().Hex()) &&
		strings.EqualFold(td.Domain.VerifyingContract, b.Account.Hex())
}

// matchesManual checks the blob against a signed manual approval document.
func (b *SessionBlob) matchesManual(mp manualPayload) bool {
	return mp.SessionKey == b.SessionAddress &&
		mp.Account == b.Account &&
		mp.ChainID == b.ChainID &&
		mp.CreatedAt/1000+mp.ExpiresIn == b.ValidUntil &&
		mp.Permissions.Hash() == b.Policy.Hash()
}
