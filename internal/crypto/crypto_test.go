package crypto

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	sealed, err := Seal([]byte("session blob"), "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "session blob")

	plain, err := Open(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "session blob", string(plain))

	_, err = Open(sealed, "wrong")
	assert.Error(t, err)

	_, err = Seal([]byte("x"), "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestKeystore_LoadOrCreate(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewKeystore(dir, "pw")
	require.NoError(t, err)

	_, err = ks.Load("alice")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	k1, created, err := ks.LoadOrCreate("alice")
	require.NoError(t, err)
	assert.True(t, created)

	k2, created, err := ks.LoadOrCreate("alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, k1.D, k2.D)

	other, _, err := ks.LoadOrCreate("bob")
	require.NoError(t, err)
	assert.NotEqual(t, k1.D, other.D)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := NewKeystore(dir, "wrong")
	require.NoError(t, err)
	_, err = reopened.Load("alice")
	assert.Error(t, err)
}

func TestSigner_PersonalRecover(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	sig, err := s.SignPersonal([]byte("approve"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	addr, err := RecoverPersonal([]byte("approve"), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	round, err := NewSignerFromHex(s.PrivateKeyHex())
	require.NoError(t, err)
	assert.Equal(t, s.Address(), round.Address())
}

func TestSigner_TypedData(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Ping": {{Name: "value", Type: "uint256"}},
		},
		PrimaryType: "Ping",
		Domain: apitypes.TypedDataDomain{
			Name:    "Test",
			ChainId: (*math.HexOrDecimal256)(big.NewInt(84532)),
		},
		Message: apitypes.TypedDataMessage{"value": "7"},
	}

	sig, err := s.SignTypedData(td)
	require.NoError(t, err)
	addr, err := RecoverTypedData(td, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
}
