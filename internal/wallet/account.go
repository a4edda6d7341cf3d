package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Well-known ERC-4337 deployments.
var (
	EntryPointV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	KernelFactoryV24 = common.HexToAddress("0x5de4839a76cf55d0c90e2061ef4386d962E15ae3")
	KernelFactoryV31 = common.HexToAddress("0x2577507b78c2008Ff367261CB6285d44ba5eF2E9")
)

// Account is a counterfactual smart account controlled by an owner key.
type Account struct {
	Address    common.Address `json:"address"`
	Owner      common.Address `json:"owner"`
	Factory    common.Address `json:"factory"`
	EntryPoint common.Address `json:"entryPoint"`
	Index      uint64         `json:"index"`
}

// InitCodeHash returns the configured proxy init-code hash, or a hash bound
// to the factory address when none is configured.
func InitCodeHash(factory common.Address, configured string) common.Hash {
	if configured != "" {
		return common.HexToHash(configured)
	}
	return ethcrypto.Keccak256Hash(factory.Bytes())
}

// DeriveAccount computes the CREATE2 address of the owner's account at
// index. The salt is keccak256(owner ‖ uint256(index)).
func DeriveAccount(factory, entryPoint, owner common.Address, index uint64, initCodeHash common.Hash) Account {
	salt := ethcrypto.Keccak256Hash(
		owner.Bytes(),
		common.LeftPadBytes(new(big.Int).SetUint64(index).Bytes(), 32),
	)
	return Account{
		Address:    ethcrypto.CreateAddress2(factory, salt, initCodeHash.Bytes()),
		Owner:      owner,
		Factory:    factory,
		EntryPoint: entryPoint,
		Index:      index,
	}
}
