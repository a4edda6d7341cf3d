package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer signs digests, EIP-191 personal messages and EIP-712 typed data
// with one secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner wraps an existing key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// NewSignerFromHex parses a hex private key with or without 0x prefix.
func NewSignerFromHex(privateKeyHex string) (*Signer, error) {
	raw, err := hexutil.Decode(ensure0x(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key hex: %w", err)
	}
	pk, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewSigner(pk), nil
}

// GenerateSigner creates a signer over a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generating key: %w", err)
	}
	return NewSigner(pk), nil
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the 0x-prefixed private key.
func (s *Signer) PrivateKeyHex() string {
	return hexutil.Encode(ethcrypto.FromECDSA(s.privateKey))
}

// SignHash signs a 32-byte digest and returns r || s || v with v in {27,28}.
func (s *Signer) SignHash(digest []byte) (hexutil.Bytes, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignPersonal signs msg with the EIP-191 "\x19Ethereum Signed Message" prefix.
func (s *Signer) SignPersonal(msg []byte) (hexutil.Bytes, error) {
	return s.SignHash(accounts.TextHash(msg))
}

// SignTypedData hashes and signs EIP-712 typed data.
func (s *Signer) SignTypedData(td apitypes.TypedData) (hexutil.Bytes, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: hashing typed data: %w", err)
	}
	return s.SignHash(digest)
}

// RecoverPersonal returns the address that produced a SignPersonal signature.
func RecoverPersonal(msg []byte, sig []byte) (common.Address, error) {
	return recoverHash(accounts.TextHash(msg), sig)
}

// RecoverTypedData returns the address that signed td.
func RecoverTypedData(td apitypes.TypedData, sig []byte) (common.Address, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: hashing typed data: %w", err)
	}
	return recoverHash(digest, sig)
}

func recoverHash(digest, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature length %d", len(sig))
	}
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, cp)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func ensure0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return "0x" + s
}
