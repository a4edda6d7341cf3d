package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// CallPermission allows calls to one target, optionally only one function
// selector and up to a maximum value.
type CallPermission struct {
	Target   common.Address `json:"target"`
	Selector hexutil.Bytes  `json:"selector,omitempty"`
	MaxValue *hexutil.Big   `json:"maxValue,omitempty"`
}

// Policy is the permission set attached to a session key. Unrestricted must
// be chosen explicitly; an empty Calls list on its own allows nothing.
type Policy struct {
	Unrestricted bool             `json:"unrestricted"`
	Calls        []CallPermission `json:"calls,omitempty"`
}

// ParseCallPermission builds a CallPermission from config strings. selector
// and maxValue may be empty; maxValue is decimal wei.
func ParseCallPermission(target, selector, maxValue string) (CallPermission, error) {
	if !common.IsHexAddress(target) {
		return CallPermission{}, fmt.Errorf("wallet: permission target %q is not an address", target)
	}
	p := CallPermission{Target: common.HexToAddress(target)}
	if selector != "" {
		sel, err := hexutil.Decode(selector)
		if err != nil || len(sel) != 4 {
			return CallPermission{}, fmt.Errorf("wallet: permission selector %q must be 4 bytes of hex", selector)
		}
		p.Selector = sel
	}
	if maxValue != "" {
		v, ok := new(big.Int).SetString(maxValue, 10)
		if !ok || v.Sign() < 0 {
			return CallPermission{}, fmt.Errorf("wallet: permission max value %q is not a wei amount", maxValue)
		}
		p.MaxValue = (*hexutil.Big)(v)
	}
	return p, nil
}

// Call is a single contract call executed by the smart account.
type Call struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data,omitempty"`
}

// Allows returns nil when the policy permits c.
func (p Policy) Allows(c Call) error {
	if p.Unrestricted {
		return nil
	}
	value := c.Value
	if value == nil {
		value = new(big.Int)
	}
	for _, perm := range p.Calls {
		if perm.Target != c.To {
			continue
		}
		if len(perm.Selector) > 0 && (len(c.Data) < 4 || !bytes.Equal(perm.Selector, c.Data[:4])) {
			continue
		}
		if perm.MaxValue != nil && value.Cmp(perm.MaxValue.ToInt()) > 0 {
			continue
		}
		return nil
	}
	return fmt.Errorf("wallet: call to %s not permitted by session policy: %w", c.To.Hex(), domain.ErrUnauthorized)
}

// Hash commits to the policy for signing.
func (p Policy) Hash() common.Hash {
	b, _ := json.Marshal(p)
	return ethcrypto.Keccak256Hash(b)
}
