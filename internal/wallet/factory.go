package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// ApprovalRequest carries everything a factory needs to obtain the owner's
// one-time authorization of a session key.
type ApprovalRequest struct {
	UserID         string
	Owner          common.Address
	OwnerProvider  Provider
	ChainID        int64
	ProjectID      string
	AccountIndex   uint64
	SessionAddress common.Address
	Policy         Policy
	ValidAfter     time.Time
	ValidUntil     time.Time
}

// Approval is a signed delegation produced by a factory.
type Approval struct {
	Variant   string
	Account   Account
	Kind      ApprovalKind
	Payload   string
	Signature hexutil.Bytes
}

// AccountFactory is one way of building a session-key account. Probe must
// not prompt the owner; Approve prompts exactly once.
type AccountFactory interface {
	Name() string
	Probe(ctx context.Context) error
	Approve(ctx context.Context, req ApprovalRequest) (Approval, error)
	Account(owner common.Address, index uint64) Account
}

// KernelFactory enables a session-key validator on a kernel account through
// an EIP-712 "Enable" signature from the owner.
type KernelFactory struct {
	Version      string
	EntryPoint   common.Address
	Factory      common.Address
	InitCodeHash common.Hash
	Bundler      Provider
}

// NewKernelV31 returns the kernel v3.1 factory on entry point v0.7.
func NewKernelV31(factory common.Address, initHash string, bundler Provider) *KernelFactory {
	return &KernelFactory{
		Version:      "0.3.1",
		EntryPoint:   EntryPointV07,
		Factory:      factory,
		InitCodeHash: InitCodeHash(factory, initHash),
		Bundler:      bundler,
	}
}

// NewKernelV24 returns the kernel v2.4 factory on entry point v0.6.
func NewKernelV24(bundler Provider) *KernelFactory {
	return &KernelFactory{
		Version:      "0.2.4",
		EntryPoint:   EntryPointV06,
		Factory:      KernelFactoryV24,
		InitCodeHash: InitCodeHash(KernelFactoryV24, ""),
		Bundler:      bundler,
	}
}

// Name implements AccountFactory.
func (k *KernelFactory) Name() string { return "kernel-v" + k.Version }

// Account implements AccountFactory.
func (k *KernelFactory) Account(owner common.Address, index uint64) Account {
	return DeriveAccount(k.Factory, k.EntryPoint, owner, index, k.InitCodeHash)
}

// Probe asks the bundler which entry points it serves.
func (k *KernelFactory) Probe(ctx context.Context) error {
	if k.Bundler == nil {
		return fmt.Errorf("wallet: %s: no bundler: %w", k.Name(), domain.ErrUnsupportedShape)
	}
	raw, err := k.Bundler.Request(ctx, "eth_supportedEntryPoints")
	if err != nil {
		return fmt.Errorf("wallet: %s: probe: %w: %w", k.Name(), domain.ErrUnsupportedShape, err)
	}
	var eps []common.Address
	if err := json.Unmarshal(raw, &eps); err != nil {
		return fmt.Errorf("wallet: %s: probe result: %w", k.Name(), domain.ErrUnsupportedShape)
	}
	for _, ep := range eps {
		if ep == k.EntryPoint {
			return nil
		}
	}
	return fmt.Errorf("wallet: %s: bundler does not serve entry point %s: %w", k.Name(), k.EntryPoint.Hex(), domain.ErrUnsupportedShape)
}

// Approve implements AccountFactory.
func (k *KernelFactory) Approve(ctx context.Context, req ApprovalRequest) (Approval, error) {
	acct := k.Account(req.Owner, req.AccountIndex)
	td := k.enableTypedData(acct, req)
	doc, err := json.Marshal(td)
	if err != nil {
		return Approval{}, fmt.Errorf("wallet: %s: encode typed data: %w", k.Name(), err)
	}
	sigHex, err := requestString(ctx, req.OwnerProvider, "eth_signTypedData_v4", req.Owner.Hex(), string(doc))
	if err != nil {
		return Approval{}, fmt.Errorf("wallet: %s: owner signature: %w", k.Name(), err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return Approval{}, fmt.Errorf("wallet: %s: signature: %w", k.Name(), err)
	}
	return Approval{
		Variant:   k.Name(),
		Account:   acct,
		Kind:      ApprovalTypedData,
		Payload:   string(doc),
		Signature: sig,
	}, nil
}

func (k *KernelFactory) enableTypedData(acct Account, req ApprovalRequest) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Enable": {
				{Name: "sessionKey", Type: "address"},
				{Name: "validAfter", Type: "uint48"},
				{Name: "validUntil", Type: "uint48"},
				{Name: "permissionsHash", Type: "bytes32"},
			},
		},
		PrimaryType: "Enable",
		Domain: apitypes.TypedDataDomain{
			Name:              "Kernel",
			Version:           k.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(req.ChainID)),
			VerifyingContract: acct.Address.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"sessionKey":      req.SessionAddress.Hex(),
			"validAfter":      strconv.FormatInt(req.ValidAfter.Unix(), 10),
			"validUntil":      strconv.FormatInt(req.ValidUntil.Unix(), 10),
			"permissionsHash": req.Policy.Hash().Hex(),
		},
	}
}

// ManualApproval has the owner personal_sign a plain approval document. It
// needs nothing from the bundler, so it always probes successfully.
type ManualApproval struct {
	Factory      common.Address
	EntryPoint   common.Address
	InitCodeHash common.Hash
}

// manualPayload is the signed approval document.
type manualPayload struct {
	Type        string         `json:"type"`
	ProjectID   string         `json:"projectId"`
	CreatedAt   int64          `json:"createdAt"`
	Permissions Policy         `json:"permissions"`
	ExpiresIn   int64          `json:"expiresIn"`
	SessionKey  common.Address `json:"sessionKey"`
	Account     common.Address `json:"account"`
	ChainID     int64          `json:"chainId"`
}

// Name implements AccountFactory.
func (m *ManualApproval) Name() string { return "manual" }

// Account implements AccountFactory.
func (m *ManualApproval) Account(owner common.Address, index uint64) Account {
	return DeriveAccount(m.Factory, m.EntryPoint, owner, index, m.InitCodeHash)
}

// Probe implements AccountFactory.
func (m *ManualApproval) Probe(context.Context) error { return nil }

// Approve implements AccountFactory.
func (m *ManualApproval) Approve(ctx context.Context, req ApprovalRequest) (Approval, error) {
	acct := m.Account(req.Owner, req.AccountIndex)
	doc, err := json.Marshal(manualPayload{
		Type:        "zerodev_session_approval",
		ProjectID:   req.ProjectID,
		CreatedAt:   req.ValidAfter.UnixMilli(),
		Permissions: req.Policy,
		ExpiresIn:   int64(req.ValidUntil.Sub(req.ValidAfter) / time.Second),
		SessionKey:  req.SessionAddress,
		Account:     acct.Address,
		ChainID:     req.ChainID,
	})
	if err != nil {
		return Approval{}, fmt.Errorf("wallet: manual: encode payload: %w", err)
	}
	sigHex, err := requestString(ctx, req.OwnerProvider, "personal_sign", hexutil.Encode(doc), req.Owner.Hex())
	if err != nil {
		return Approval{}, fmt.Errorf("wallet: manual: owner signature: %w", err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return Approval{}, fmt.Errorf("wallet: manual: signature: %w", err)
	}
	return Approval{
		Variant:   m.Name(),
		Account:   acct,
		Kind:      ApprovalPersonal,
		Payload:   string(doc),
		Signature: sig,
	}, nil
}

// ApproveWithFallback tries factories in order. A failed probe or a failed
// approval moves on to the next factory. A user rejection stops the chain so
// the owner is never asked twice for one approval.
func ApproveWithFallback(ctx context.Context, factories []AccountFactory, req ApprovalRequest, logger *slog.Logger) (Approval, error) {
	var errs []error
	for _, f := range factories {
		if err := ctx.Err(); err != nil {
			return Approval{}, err
		}
		if err := f.Probe(ctx); err != nil {
			logger.InfoContext(ctx, "account factory unavailable",
				slog.String("factory", f.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		a, err := f.Approve(ctx, req)
		if err == nil {
			return a, nil
		}
		if IsUserRejected(err) {
			return Approval{}, fmt.Errorf("wallet: approval via %s: %w: %w", f.Name(), domain.ErrUserRejected, err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Approval{}, err
		}
		logger.WarnContext(ctx, "account factory failed",
			slog.String("factory", f.Name()),
			slog.String("error", err.Error()),
		)
		errs = append(errs, err)
	}
	return Approval{}, fmt.Errorf("wallet: %w: %w", domain.ErrFallbacksExhausted, errors.Join(errs...))
}
