// Package wallet manages a user's embedded signing key, the smart account it
// controls, and the delegated session key that lets the account transact
// without prompting the user.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// EIP-1193 and EIP-3085 error codes.
const (
	CodeUserRejected = 4001
	CodeUnauthorized = 4100
	CodeUnsupported  = 4200
	CodeChainUnknown = 4902
)

// Provider is an EIP-1193 request surface.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// ProviderError is a JSON-RPC error raised locally by a provider. It
// satisfies go-ethereum's rpc.Error so callers classify local and remote
// failures the same way.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode implements rpc.Error.
func (e *ProviderError) ErrorCode() int { return e.Code }

// Unwrap maps well-known codes onto domain sentinels.
func (e *ProviderError) Unwrap() error {
	switch e.Code {
	case CodeUserRejected:
		return domain.ErrUserRejected
	case CodeChainUnknown:
		return domain.ErrChainUnknown
	}
	return nil
}

var _ rpc.Error = (*ProviderError)(nil)

// ErrorCode extracts a JSON-RPC error code from err, or 0.
func ErrorCode(err error) int {
	var rerr rpc.Error
	if errors.As(err, &rerr) {
		return rerr.ErrorCode()
	}
	return 0
}

// IsUserRejected reports whether err means the user declined a prompt.
func IsUserRejected(err error) bool {
	return errors.Is(err, domain.ErrUserRejected) || ErrorCode(err) == CodeUserRejected
}

// RPCProvider forwards requests to a JSON-RPC endpoint.
type RPCProvider struct {
	client *rpc.Client
}

// DialRPC connects to a JSON-RPC endpoint over HTTP or WebSocket.
func DialRPC(ctx context.Context, url string) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial %s: %w", url, err)
	}
	return &RPCProvider{client: c}, nil
}

// Request implements Provider.
func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := p.client.CallContext(ctx, &raw, method, params...); err != nil {
		return nil, err
	}
	return raw, nil
}

// Close releases the underlying connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}

// Dialer opens a provider for an RPC URL.
type Dialer func(ctx context.Context, url string) (Provider, error)

// DefaultDialer dials with DialRPC.
func DefaultDialer(ctx context.Context, url string) (Provider, error) {
	return DialRPC(ctx, url)
}

// requestString issues a request whose result is a JSON string.
func requestString(ctx context.Context, p Provider, method string, params ...any) (string, error) {
	raw, err := p.Request(ctx, method, params...)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("wallet: %s: decoding result: %w", method, err)
	}
	return s, nil
}
