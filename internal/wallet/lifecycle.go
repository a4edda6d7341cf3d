package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/hunch/internal/crypto"
	"github.com/alanyoungcy/hunch/internal/domain"
)

// KeySource custodies embedded-wallet owner keys.
type KeySource interface {
	LoadOrCreate(userID string) (key *ecdsa.PrivateKey, created bool, err error)
}

// Options configures a Lifecycle.
type Options struct {
	UserID       string
	Chain        Chain
	ProjectID    string
	AccountIndex uint64
	Validity     time.Duration
	Policy       Policy

	Keys      KeySource
	Store     domain.SessionStore
	Factories []AccountFactory
	Approver  Approver
	Dial      Dialer
	// Bundler receives eth_sendUserOperation. Nil disables SubmitOperation.
	Bundler Provider
	// Paymaster, when set, is asked to sponsor each operation.
	Paymaster Provider

	Logger *slog.Logger
	Now    func() time.Time
}

// Lifecycle drives one user's wallet from no key to a popup-free session.
// Methods are safe for concurrent use.
type Lifecycle struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     domain.WalletState
	provider  *EmbeddedProvider
	account   *Account
	session   *SessionBlob
	sessKey   *crypto.Signer
	lastErr   string
	approving bool
}

// NewLifecycle creates a lifecycle in the no-wallet state.
func NewLifecycle(opts Options) *Lifecycle {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dial == nil {
		opts.Dial = DefaultDialer
	}
	if opts.Approver == nil {
		opts.Approver = RejectAll{}
	}
	return &Lifecycle{
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "wallet"), slog.String("user_id", opts.UserID)),
		now:    opts.Now,
		state:  domain.WalletStateNoWallet,
	}
}

// Provider returns the embedded EIP-1193 provider, or nil before
// EnsureEmbeddedWallet.
func (l *Lifecycle) Provider() *EmbeddedProvider {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.provider
}

// EnsureEmbeddedWallet creates the user's owner key on first use and loads
// it afterwards. It never prompts.
func (l *Lifecycle) EnsureEmbeddedWallet(ctx context.Context) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.provider != nil {
		return l.provider.Address(), nil
	}
	key, created, err := l.opts.Keys.LoadOrCreate(l.opts.UserID)
	if err != nil {
		return common.Address{}, l.failLocked(fmt.Errorf("wallet: embedded wallet: %w", err))
	}
	l.provider = NewEmbeddedProvider(l.opts.UserID, key, l.opts.Approver, l.opts.Dial, l.opts.Logger, l.opts.Chain)
	l.state = domain.WalletStateWalletCreated
	l.logger.InfoContext(ctx, "embedded wallet ready",
		slog.String("owner", l.provider.Address().Hex()),
		slog.Bool("created", created),
	)
	return l.provider.Address(), nil
}

// EnsureNetwork selects the configured chain on the embedded provider.
func (l *Lifecycle) EnsureNetwork(ctx context.Context) error {
	p := l.Provider()
	if p == nil {
		return domain.ErrNoWallet
	}
	if err := EnsureNetwork(ctx, p, l.opts.Chain, l.logger); err != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.failLocked(err)
	}
	l.mu.Lock()
	if l.state == domain.WalletStateWalletCreated || l.state == domain.WalletStateError {
		l.state = domain.WalletStateNetworkVerified
	}
	l.mu.Unlock()
	return nil
}

// RestoreOrCreateAccount restores a stored session without any signature
// prompt, or derives the owner-controlled account and waits for approval.
// Expired or corrupt sessions are cleared and fall back to approval.
func (l *Lifecycle) RestoreOrCreateAccount(ctx context.Context) (domain.WalletStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.provider == nil {
		return l.statusLocked(), domain.ErrNoWallet
	}
	owner := l.provider.Address()

	blob, err := l.opts.Store.Get(ctx)
	switch {
	case errors.Is(err, domain.ErrNoSession):
	case err != nil:
		return l.statusLocked(), l.failLocked(fmt.Errorf("wallet: read session: %w", err))
	default:
		if l.restoreLocked(ctx, blob, owner) {
			return l.statusLocked(), nil
		}
	}

	acct := l.sudoAccount(owner)
	l.account = &acct
	l.session, l.sessKey = nil, nil
	l.state = domain.WalletStateNeedsApproval
	l.lastErr = ""
	l.logger.InfoContext(ctx, "owner account derived; session approval needed",
		slog.String("account", acct.Address.Hex()),
	)
	return l.statusLocked(), nil
}

// restoreLocked reports whether blob became the active session. Unusable
// blobs are cleared.
func (l *Lifecycle) restoreLocked(ctx context.Context, blob string, owner common.Address) bool {
	sess, signer, err := DeserializeSession(blob, l.now())
	if err == nil && sess.Owner != owner {
		err = fmt.Errorf("wallet: session owner %s is not %s: %w", sess.Owner.Hex(), owner.Hex(), domain.ErrSessionInvalid)
	}
	if err == nil && sess.ChainID != l.opts.Chain.ID {
		err = fmt.Errorf("wallet: session chain %d is not %d: %w", sess.ChainID, l.opts.Chain.ID, domain.ErrSessionInvalid)
	}
	if err != nil {
		l.logger.WarnContext(ctx, "discarding stored session", slog.String("error", err.Error()))
		if cerr := l.opts.Store.Clear(ctx); cerr != nil {
			l.logger.WarnContext(ctx, "clearing stored session failed", slog.String("error", cerr.Error()))
		}
		return false
	}

	acct := sess.AccountInfo()
	l.account = &acct
	l.session, l.sessKey = sess, signer
	l.state = domain.WalletStateSessionRestored
	l.lastErr = ""
	l.logger.InfoContext(ctx, "session restored",
		slog.String("account", acct.Address.Hex()),
		slog.String("session", sess.SessionAddress.Hex()),
		slog.String("variant", sess.Variant),
	)
	return true
}

func (l *Lifecycle) sudoAccount(owner common.Address) Account {
	if len(l.opts.Factories) > 0 {
		return l.opts.Factories[0].Account(owner, l.opts.AccountIndex)
	}
	return DeriveAccount(KernelFactoryV31, EntryPointV07, owner, l.opts.AccountIndex, InitCodeHash(KernelFactoryV31, ""))
}

// ApproveSessionKey generates a session key on this host, obtains the
// owner's single approval through the factory fallback chain, and persists
// the serialized session. On failure the account stays in needs-approval.
// The lock is not held while the owner is prompted, so Status stays
// responsive; a second concurrent approval fails with ErrLockHeld.
func (l *Lifecycle) ApproveSessionKey(ctx context.Context) (domain.WalletStatus, error) {
	l.mu.Lock()
	if l.provider == nil {
		defer l.mu.Unlock()
		return l.statusLocked(), domain.ErrNoWallet
	}
	if l.approving {
		defer l.mu.Unlock()
		return l.statusLocked(), fmt.Errorf("wallet: approval in progress: %w", domain.ErrLockHeld)
	}
	l.approving = true
	provider := l.provider
	l.mu.Unlock()

	sess, sessKey, err := l.approve(ctx, provider)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.approving = false
	if err != nil {
		return l.statusLocked(), l.approvalFailedLocked(err)
	}
	acct := sess.AccountInfo()
	l.account = &acct
	l.session, l.sessKey = sess, sessKey
	l.state = domain.WalletStateSessionApproved
	l.lastErr = ""
	l.logger.InfoContext(ctx, "session key approved",
		slog.String("variant", sess.Variant),
		slog.String("account", acct.Address.Hex()),
		slog.String("session", sess.SessionAddress.Hex()),
		slog.Time("valid_until", sess.ValidUntilTime()),
	)
	return l.statusLocked(), nil
}

func (l *Lifecycle) approve(ctx context.Context, provider *EmbeddedProvider) (*SessionBlob, *crypto.Signer, error) {
	sessKey, err := crypto.GenerateSigner()
	if err != nil {
		return nil, nil, err
	}
	now := l.now().Truncate(time.Second)
	req := ApprovalRequest{
		UserID:         l.opts.UserID,
		Owner:          provider.Address(),
		OwnerProvider:  provider,
		ChainID:        l.opts.Chain.ID,
		ProjectID:      l.opts.ProjectID,
		AccountIndex:   l.opts.AccountIndex,
		SessionAddress: sessKey.Address(),
		Policy:         l.opts.Policy,
		ValidAfter:     now,
		ValidUntil:     now.Add(l.opts.Validity),
	}

	approval, err := ApproveWithFallback(ctx, l.opts.Factories, req, l.logger)
	if err != nil {
		return nil, nil, err
	}

	sess := &SessionBlob{
		Version:         SessionBlobVersion,
		Variant:         approval.Variant,
		ChainID:         req.ChainID,
		Owner:           req.Owner,
		Account:         approval.Account.Address,
		Factory:         approval.Account.Factory,
		EntryPoint:      approval.Account.EntryPoint,
		AccountIndex:    approval.Account.Index,
		SessionKey:      sessKey.PrivateKeyHex(),
		SessionAddress:  sessKey.Address(),
		ValidAfter:      req.ValidAfter.Unix(),
		ValidUntil:      req.ValidUntil.Unix(),
		Policy:          req.Policy,
		ApprovalKind:    approval.Kind,
		ApprovalPayload: approval.Payload,
		Approval:        approval.Signature,
		CreatedAt:       now.Unix(),
	}
	encoded, err := sess.Serialize()
	if err != nil {
		return nil, nil, err
	}
	if err := l.opts.Store.Set(ctx, encoded); err != nil {
		return nil, nil, fmt.Errorf("wallet: persist session: %w", err)
	}
	return sess, sessKey, nil
}

// ResetSessionKey deletes the stored session. The on-chain delegation is
// left in place.
func (l *Lifecycle) ResetSessionKey(ctx context.Context) (domain.WalletStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.opts.Store.Clear(ctx); err != nil {
		return l.statusLocked(), fmt.Errorf("wallet: clear session: %w", err)
	}
	l.session, l.sessKey = nil, nil
	if l.provider != nil {
		acct := l.sudoAccount(l.provider.Address())
		l.account = &acct
		l.state = domain.WalletStateNeedsApproval
	}
	l.logger.InfoContext(ctx, "session key removed")
	return l.statusLocked(), nil
}

// Status returns a snapshot of the lifecycle.
func (l *Lifecycle) Status() domain.WalletStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

// Setup runs the startup chain: wallet, network, then restore-or-create.
func (l *Lifecycle) Setup(ctx context.Context) (domain.WalletStatus, error) {
	if _, err := l.EnsureEmbeddedWallet(ctx); err != nil {
		return l.Status(), err
	}
	if err := l.EnsureNetwork(ctx); err != nil {
		return l.Status(), err
	}
	return l.RestoreOrCreateAccount(ctx)
}

// OperationReceipt is the bundler's acceptance of a user operation.
type OperationReceipt struct {
	Hash      string         `json:"userOpHash"`
	Sender    common.Address `json:"sender"`
	Nonce     *hexutil.Big   `json:"nonce"`
	SignedBy  string         `json:"signedBy"`
	Sponsored bool           `json:"sponsored"`
}

// SubmitOperation executes call from the smart account. With an active
// session it is signed by the session key without prompting; otherwise the
// owner is prompted.
func (l *Lifecycle) SubmitOperation(ctx context.Context, call Call) (OperationReceipt, error) {
	l.mu.Lock()
	provider, acct, sess, sessKey := l.provider, l.account, l.session, l.sessKey
	l.mu.Unlock()

	if provider == nil {
		return OperationReceipt{}, domain.ErrNoWallet
	}
	if acct == nil {
		return OperationReceipt{}, fmt.Errorf("wallet: submit: account not derived: %w", domain.ErrNoWallet)
	}
	if l.opts.Bundler == nil {
		return OperationReceipt{}, fmt.Errorf("wallet: submit: no bundler configured")
	}
	if sess != nil {
		if l.now().Unix() >= sess.ValidUntil {
			return OperationReceipt{}, domain.ErrSessionExpired
		}
		if err := sess.Policy.Allows(call); err != nil {
			return OperationReceipt{}, err
		}
	}

	callData, err := EncodeExecute(call)
	if err != nil {
		return OperationReceipt{}, err
	}
	nonce, err := RandomNonce()
	if err != nil {
		return OperationReceipt{}, err
	}
	op := &UserOperation{
		Sender:           acct.Address,
		Nonce:            (*hexutil.Big)(nonce),
		InitCode:         hexutil.Bytes{},
		CallData:         callData,
		PaymasterAndData: hexutil.Bytes{},
		Signature:        hexutil.Bytes{},
	}
	if code, err := requestString(ctx, provider, "eth_getCode", acct.Address, "latest"); err == nil && (code == "0x" || code == "") {
		if op.InitCode, err = InitCode(*acct); err != nil {
			return OperationReceipt{}, err
		}
	}
	applyFees(ctx, provider, op)
	applyGas(ctx, l.opts.Bundler, op, acct.EntryPoint)
	sponsored := applyPaymaster(ctx, l.opts.Paymaster, op, acct.EntryPoint)

	hash, err := op.Hash(acct.EntryPoint, l.opts.Chain.ID)
	if err != nil {
		return OperationReceipt{}, err
	}

	receipt := OperationReceipt{Sender: acct.Address, Nonce: op.Nonce, Sponsored: sponsored}
	if sessKey != nil {
		sig, err := sessKey.SignPersonal(hash.Bytes())
		if err != nil {
			return OperationReceipt{}, fmt.Errorf("wallet: submit: %w: %w", domain.ErrSigningFailed, err)
		}
		op.Signature = sig
		receipt.SignedBy = "session"
	} else {
		sigHex, err := requestString(ctx, provider, "personal_sign", hash.Hex(), acct.Owner.Hex())
		if err != nil {
			return OperationReceipt{}, fmt.Errorf("wallet: submit: owner signature: %w", err)
		}
		if op.Signature, err = hexutil.Decode(sigHex); err != nil {
			return OperationReceipt{}, fmt.Errorf("wallet: submit: %w: %w", domain.ErrSigningFailed, err)
		}
		receipt.SignedBy = "owner"
	}

	opHash, err := requestString(ctx, l.opts.Bundler, "eth_sendUserOperation", op, acct.EntryPoint)
	if err != nil {
		return OperationReceipt{}, fmt.Errorf("wallet: submit: bundler: %w", err)
	}
	receipt.Hash = opHash
	l.logger.InfoContext(ctx, "user operation submitted",
		slog.String("hash", opHash),
		slog.String("signed_by", receipt.SignedBy),
		slog.String("to", call.To.Hex()),
	)
	return receipt, nil
}

func (l *Lifecycle) approvalFailedLocked(err error) error {
	if l.provider != nil && l.state != domain.WalletStateSessionRestored && l.state != domain.WalletStateSessionApproved {
		l.state = domain.WalletStateNeedsApproval
	}
	l.lastErr = err.Error()
	l.logger.Warn("session approval failed", slog.String("error", err.Error()))
	return err
}

func (l *Lifecycle) failLocked(err error) error {
	l.state = domain.WalletStateError
	l.lastErr = err.Error()
	l.logger.Error("wallet setup failed", slog.String("error", err.Error()))
	return err
}

func (l *Lifecycle) statusLocked() domain.WalletStatus {
	st := domain.WalletStatus{
		UserID:        l.opts.UserID,
		State:         l.state,
		NeedsApproval: l.state == domain.WalletStateNeedsApproval,
		ChainID:       l.opts.Chain.HexID(),
		ChainName:     ChainName(l.opts.Chain.HexID()),
		LastError:     l.lastErr,
	}
	if l.provider != nil {
		st.Owner = l.provider.Address().Hex()
		st.ChainID = l.provider.ChainID()
		st.ChainName = ChainName(st.ChainID)
	}
	if l.account != nil {
		st.Account = l.account.Address.Hex()
		st.Factory = l.account.Factory.Hex()
	}
	if l.session != nil {
		st.SessionAddress = l.session.SessionAddress.Hex()
		until := l.session.ValidUntilTime()
		st.ValidUntil = &until
	}
	return st
}
