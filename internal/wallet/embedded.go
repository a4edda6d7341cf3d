package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/hunch/internal/crypto"
)

// EmbeddedProvider custodies one user's owner key and exposes it through
// EIP-1193. Chain management and signing are answered locally; signing
// always goes through the Approver. Everything else is forwarded to the
// active chain's RPC endpoint.
type EmbeddedProvider struct {
	userID   string
	signer   *crypto.Signer
	approver Approver
	dial     Dialer
	logger   *slog.Logger

	mu       sync.Mutex
	chains   map[string]Chain
	current  string
	upstream map[string]Provider
}

// NewEmbeddedProvider starts on the first of chains.
func NewEmbeddedProvider(userID string, key *ecdsa.PrivateKey, approver Approver, dial Dialer, logger *slog.Logger, chains ...Chain) *EmbeddedProvider {
	if dial == nil {
		dial = DefaultDialer
	}
	p := &EmbeddedProvider{
		userID:   userID,
		signer:   crypto.NewSigner(key),
		approver: approver,
		dial:     dial,
		logger:   logger.With(slog.String("component", "embedded_wallet")),
		chains:   make(map[string]Chain),
		upstream: make(map[string]Provider),
	}
	for i, c := range chains {
		id := strings.ToLower(c.HexID())
		p.chains[id] = c
		if i == 0 {
			p.current = id
		}
	}
	return p
}

// Address returns the owner address.
func (p *EmbeddedProvider) Address() common.Address {
	return p.signer.Address()
}

// ChainID returns the active hex chain id.
func (p *EmbeddedProvider) ChainID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Request implements Provider.
func (p *EmbeddedProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_chainId":
		return json.Marshal(p.ChainID())
	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal([]common.Address{p.signer.Address()})
	case "wallet_switchEthereumChain":
		return p.switchChain(params)
	case "wallet_addEthereumChain":
		return p.addChain(params)
	case "personal_sign":
		return p.personalSign(ctx, params)
	case "eth_signTypedData_v4":
		return p.signTypedData(ctx, params)
	case "eth_sign", "eth_signTransaction", "eth_sendTransaction":
		return nil, &ProviderError{Code: CodeUnsupported, Message: method + " is not supported by smart-account owners"}
	}
	up, err := p.upstreamFor(ctx)
	if err != nil {
		return nil, err
	}
	return up.Request(ctx, method, params...)
}

func (p *EmbeddedProvider) switchChain(params []any) (json.RawMessage, error) {
	var req switchChainParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}
	id := strings.ToLower(req.ChainID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.chains[id]; !ok {
		return nil, &ProviderError{Code: CodeChainUnknown, Message: "Unrecognized chain ID " + req.ChainID}
	}
	p.current = id
	return json.RawMessage("null"), nil
}

func (p *EmbeddedProvider) addChain(params []any) (json.RawMessage, error) {
	var req addChainParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}
	id, err := hexutil.DecodeBig(req.ChainID)
	if err != nil {
		return nil, &ProviderError{Code: -32602, Message: "invalid chainId"}
	}
	if len(req.RPCURLs) == 0 {
		return nil, &ProviderError{Code: -32602, Message: "rpcUrls required"}
	}
	c := Chain{ID: id.Int64(), Name: req.ChainName, RPCURL: req.RPCURLs[0]}
	if len(req.BlockExplorerURLs) > 0 {
		c.ExplorerURL = req.BlockExplorerURLs[0]
	}

	p.mu.Lock()
	p.chains[strings.ToLower(c.HexID())] = c
	p.mu.Unlock()
	p.logger.Info("chain added", slog.String("chain_id", c.HexID()), slog.String("name", c.Name))
	return json.RawMessage("null"), nil
}

// personal_sign params are [data, address]; data is hex or plain text.
func (p *EmbeddedProvider) personalSign(ctx context.Context, params []any) (json.RawMessage, error) {
	var data, addr string
	if err := decodeParam(params, 0, &data); err != nil {
		return nil, err
	}
	if err := decodeParam(params, 1, &addr); err != nil {
		return nil, err
	}
	if err := p.checkAddress(addr); err != nil {
		return nil, err
	}

	msg := []byte(data)
	if b, err := hexutil.Decode(data); err == nil {
		msg = b
	}
	if err := p.approver.Approve(ctx, Prompt{
		UserID:  p.userID,
		Method:  "personal_sign",
		Summary: "Sign message as " + p.signer.Address().Hex(),
		Payload: string(msg),
	}); err != nil {
		return nil, err
	}
	sig, err := p.signer.SignPersonal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sig)
}

// eth_signTypedData_v4 params are [address, typedDataJSON].
func (p *EmbeddedProvider) signTypedData(ctx context.Context, params []any) (json.RawMessage, error) {
	var addr, doc string
	if err := decodeParam(params, 0, &addr); err != nil {
		return nil, err
	}
	if err := p.checkAddress(addr); err != nil {
		return nil, err
	}
	if err := decodeParam(params, 1, &doc); err != nil {
		return nil, err
	}
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(doc), &td); err != nil {
		return nil, &ProviderError{Code: -32602, Message: "invalid typed data: " + err.Error()}
	}
	if err := p.approver.Approve(ctx, Prompt{
		UserID:  p.userID,
		Method:  "eth_signTypedData_v4",
		Summary: fmt.Sprintf("Sign %s for %s", td.PrimaryType, td.Domain.Name),
		Payload: doc,
	}); err != nil {
		return nil, err
	}
	sig, err := p.signer.SignTypedData(td)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sig)
}

func (p *EmbeddedProvider) checkAddress(addr string) error {
	if !common.IsHexAddress(addr) || common.HexToAddress(addr) != p.signer.Address() {
		return &ProviderError{Code: CodeUnauthorized, Message: "address " + addr + " is not managed by this wallet"}
	}
	return nil
}

func (p *EmbeddedProvider) upstreamFor(ctx context.Context) (Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if up, ok := p.upstream[p.current]; ok {
		return up, nil
	}
	c, ok := p.chains[p.current]
	if !ok {
		return nil, &ProviderError{Code: CodeChainUnknown, Message: "no active chain"}
	}
	up, err := p.dial(ctx, c.RPCURL)
	if err != nil {
		return nil, err
	}
	p.upstream[p.current] = up
	return up, nil
}

// decodeParam re-decodes params[i] into out so callers may pass either
// typed structs or generic JSON values.
func decodeParam(params []any, i int, out any) error {
	if i >= len(params) {
		return &ProviderError{Code: -32602, Message: fmt.Sprintf("missing param %d", i)}
	}
	b, err := json.Marshal(params[i])
	if err != nil {
		return &ProviderError{Code: -32602, Message: err.Error()}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &ProviderError{Code: -32602, Message: fmt.Sprintf("param %d: %v", i, err)}
	}
	return nil
}
