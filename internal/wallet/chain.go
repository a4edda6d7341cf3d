package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// Chain describes an EVM network in the form wallet_addEthereumChain takes.
type Chain struct {
	ID          int64
	Name        string
	RPCURL      string
	ExplorerURL string
}

// HexID returns the 0x-prefixed chain id.
func (c Chain) HexID() string {
	return hexutil.EncodeBig(big.NewInt(c.ID))
}

// nativeCurrency is the EIP-3085 currency block.
type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// addChainParams is the EIP-3085 wallet_addEthereumChain parameter.
type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (c Chain) addParams() addChainParams {
	p := addChainParams{
		ChainID:        c.HexID(),
		ChainName:      c.Name,
		NativeCurrency: nativeCurrency{Name: "ETH", Symbol: "ETH", Decimals: 18},
		RPCURLs:        []string{c.RPCURL},
	}
	if c.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{c.ExplorerURL}
	}
	return p
}

// ChainName returns a display name for a hex chain id.
func ChainName(chainIDHex string) string {
	if chainIDHex == "" {
		return "Unknown"
	}
	switch strings.ToLower(chainIDHex) {
	case "0x1":
		return "Ethereum Mainnet"
	case "0x14a34":
		return "Base Sepolia"
	case "0x2105":
		return "Base"
	case "0xaa36a7":
		return "Sepolia"
	default:
		return fmt.Sprintf("Unknown (%s)", chainIDHex)
	}
}

// EnsureNetwork puts p on chain. When the switch fails with 4902 the chain
// is added and the switch retried once. Any other failure is returned.
func EnsureNetwork(ctx context.Context, p Provider, chain Chain, logger *slog.Logger) error {
	want := chain.HexID()
	current, err := requestString(ctx, p, "eth_chainId")
	if err != nil {
		return fmt.Errorf("wallet: ensure network: chain id: %w", err)
	}
	if strings.EqualFold(current, want) {
		return nil
	}

	logger.InfoContext(ctx, "switching network",
		slog.String("from", current),
		slog.String("to", want),
	)

	_, err = p.Request(ctx, "wallet_switchEthereumChain", switchChainParams{ChainID: want})
	if err == nil {
		return nil
	}
	if ErrorCode(err) != CodeChainUnknown {
		return fmt.Errorf("wallet: ensure network: switch to %s: %w: %w", want, domain.ErrWrongNetwork, err)
	}

	if _, err := p.Request(ctx, "wallet_addEthereumChain", chain.addParams()); err != nil {
		return fmt.Errorf("wallet: ensure network: add %s: %w", want, err)
	}
	if _, err := p.Request(ctx, "wallet_switchEthereumChain", switchChainParams{ChainID: want}); err != nil {
		return fmt.Errorf("wallet: ensure network: switch after add: %w: %w", domain.ErrWrongNetwork, err)
	}
	logger.InfoContext(ctx, "network added and selected", slog.String("chain_id", want))
	return nil
}

// Balance returns the ETH balance of addr as a display string.
func Balance(ctx context.Context, p Provider, addr common.Address) (string, error) {
	hexWei, err := requestString(ctx, p, "eth_getBalance", addr, "latest")
	if err != nil {
		return "", fmt.Errorf("wallet: balance: %w", err)
	}
	return FormatWei(hexWei), nil
}

var weiPerEth = decimal.New(1, 18)

// FormatWei converts a hex wei amount to ETH truncated to 6 decimals with
// trailing zeros trimmed. Unparseable input yields "0".
func FormatWei(hexWei string) string {
	wei, err := hexutil.DecodeBig(hexWei)
	if err != nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerEth).Truncate(6).String()
}
