package wallet

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an ERC-4337 v0.6 user operation in its JSON-RPC form.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// Fallback gas values used when the bundler cannot estimate.
var (
	defaultCallGas         = big.NewInt(200_000)
	defaultVerificationGas = big.NewInt(500_000)
	defaultPreVerification = big.NewInt(60_000)
	defaultGasPrice        = big.NewInt(1_000_000_000)
)

var (
	abiAddress, _ = abi.NewType("address", "", nil)
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiBytes, _   = abi.NewType("bytes", "", nil)
	abiBytes32, _ = abi.NewType("bytes32", "", nil)

	executeSelector       = ethcrypto.Keccak256([]byte("execute(address,uint256,bytes)"))[:4]
	createAccountSelector = ethcrypto.Keccak256([]byte("createAccount(address,uint256)"))[:4]
)

// EncodeExecute builds calldata for the account's execute(to, value, data).
func EncodeExecute(c Call) ([]byte, error) {
	value := c.Value
	if value == nil {
		value = new(big.Int)
	}
	args := abi.Arguments{{Type: abiAddress}, {Type: abiUint256}, {Type: abiBytes}}
	packed, err := args.Pack(c.To, value, []byte(c.Data))
	if err != nil {
		return nil, fmt.Errorf("wallet: encode execute: %w", err)
	}
	return append(append([]byte{}, executeSelector...), packed...), nil
}

// InitCode returns factory ‖ createAccount(owner, index) for an undeployed
// account.
func InitCode(acct Account) ([]byte, error) {
	args := abi.Arguments{{Type: abiAddress}, {Type: abiUint256}}
	packed, err := args.Pack(acct.Owner, new(big.Int).SetUint64(acct.Index))
	if err != nil {
		return nil, fmt.Errorf("wallet: encode init code: %w", err)
	}
	out := append([]byte{}, acct.Factory.Bytes()...)
	out = append(out, createAccountSelector...)
	return append(out, packed...), nil
}

// RandomNonce returns a fresh two-dimensional nonce: a random 192-bit key
// with sequence zero.
func RandomNonce() (*big.Int, error) {
	key := make([]byte, 24)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("wallet: nonce key: %w", err)
	}
	return new(big.Int).Lsh(new(big.Int).SetBytes(key), 64), nil
}

// Hash is the user operation hash the account validates.
func (op *UserOperation) Hash(entryPoint common.Address, chainID int64) (common.Hash, error) {
	args := abi.Arguments{
		{Type: abiAddress}, {Type: abiUint256}, {Type: abiBytes32}, {Type: abiBytes32},
		{Type: abiUint256}, {Type: abiUint256}, {Type: abiUint256},
		{Type: abiUint256}, {Type: abiUint256}, {Type: abiBytes32},
	}
	packed, err := args.Pack(
		op.Sender,
		op.Nonce.ToInt(),
		ethcrypto.Keccak256Hash(op.InitCode),
		ethcrypto.Keccak256Hash(op.CallData),
		op.CallGasLimit.ToInt(),
		op.VerificationGasLimit.ToInt(),
		op.PreVerificationGas.ToInt(),
		op.MaxFeePerGas.ToInt(),
		op.MaxPriorityFeePerGas.ToInt(),
		ethcrypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: pack user operation: %w", err)
	}
	outer := abi.Arguments{{Type: abiBytes32}, {Type: abiAddress}, {Type: abiUint256}}
	enc, err := outer.Pack(ethcrypto.Keccak256Hash(packed), entryPoint, big.NewInt(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: pack user operation hash: %w", err)
	}
	return ethcrypto.Keccak256Hash(enc), nil
}

// gasEstimate is the eth_estimateUserOperationGas result.
type gasEstimate struct {
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
}

// applyGas fills gas limits from the bundler, falling back to defaults.
func applyGas(ctx context.Context, bundler Provider, op *UserOperation, entryPoint common.Address) {
	op.CallGasLimit = (*hexutil.Big)(defaultCallGas)
	op.VerificationGasLimit = (*hexutil.Big)(defaultVerificationGas)
	op.PreVerificationGas = (*hexutil.Big)(defaultPreVerification)
	if bundler == nil {
		return
	}
	raw, err := bundler.Request(ctx, "eth_estimateUserOperationGas", op, entryPoint)
	if err != nil {
		return
	}
	var est gasEstimate
	if json.Unmarshal(raw, &est) != nil {
		return
	}
	if est.CallGasLimit != nil {
		op.CallGasLimit = est.CallGasLimit
	}
	if est.VerificationGasLimit != nil {
		op.VerificationGasLimit = est.VerificationGasLimit
	}
	if est.PreVerificationGas != nil {
		op.PreVerificationGas = est.PreVerificationGas
	}
}

// applyFees prices the operation from eth_gasPrice on the chain.
func applyFees(ctx context.Context, chain Provider, op *UserOperation) {
	price := defaultGasPrice
	if s, err := requestString(ctx, chain, "eth_gasPrice"); err == nil {
		if p, err := hexutil.DecodeBig(s); err == nil && p.Sign() > 0 {
			price = p
		}
	}
	op.MaxFeePerGas = (*hexutil.Big)(price)
	op.MaxPriorityFeePerGas = (*hexutil.Big)(price)
}

// sponsorship is the pm_sponsorUserOperation result.
type sponsorship struct {
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas"`
}

// applyPaymaster asks the paymaster to sponsor op. Sponsorship failures
// leave the operation self-funded.
func applyPaymaster(ctx context.Context, paymaster Provider, op *UserOperation, entryPoint common.Address) bool {
	if paymaster == nil {
		return false
	}
	raw, err := paymaster.Request(ctx, "pm_sponsorUserOperation", op, entryPoint)
	if err != nil {
		return false
	}
	var sp sponsorship
	if json.Unmarshal(raw, &sp) != nil || len(sp.PaymasterAndData) == 0 {
		return false
	}
	op.PaymasterAndData = sp.PaymasterAndData
	if sp.CallGasLimit != nil {
		op.CallGasLimit = sp.CallGasLimit
	}
	if sp.VerificationGasLimit != nil {
		op.VerificationGasLimit = sp.VerificationGasLimit
	}
	if sp.PreVerificationGas != nil {
		op.PreVerificationGas = sp.PreVerificationGas
	}
	return true
}
