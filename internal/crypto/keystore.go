package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrKeyNotFound is returned by Keystore.Load when a user has no key.
var ErrKeyNotFound = errors.New("crypto: key not found")

// Keystore keeps one encrypted owner key per user under a directory. Files
// are written with 0600 permissions.
type Keystore struct {
	dir      string
	password string
	mu       sync.Mutex
}

// NewKeystore returns a keystore rooted at dir.
func NewKeystore(dir, password string) (*Keystore, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("crypto: keystore dir: %w", err)
	}
	return &Keystore{dir: dir, password: password}, nil
}

// path hashes the user id so arbitrary ids are safe file names.
func (k *Keystore) path(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return filepath.Join(k.dir, hex.EncodeToString(sum[:16])+".json")
}

// Load returns the user's key or ErrKeyNotFound.
func (k *Keystore) Load(userID string) (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.load(userID)
}

func (k *Keystore) load(userID string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(k.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("crypto: reading key: %w", err)
	}
	return DecryptKey(data, k.password)
}

// LoadOrCreate returns the user's key, generating and persisting one if
// none exists. created reports whether a new key was made.
func (k *Keystore) LoadOrCreate(userID string) (key *ecdsa.PrivateKey, created bool, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	key, err = k.load(userID)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, false, err
	}

	key, err = ethcrypto.GenerateKey()
	if err != nil {
		return nil, false, fmt.Errorf("crypto: generating key: %w", err)
	}
	sealed, err := EncryptKey(key, k.password)
	if err != nil {
		return nil, false, err
	}
	if err := WriteFileAtomic(k.path(userID), sealed, 0o600); err != nil {
		return nil, false, fmt.Errorf("crypto: writing key: %w", err)
	}
	return key, true, nil
}

// WriteFileAtomic writes through a temp file and rename so a crash never
// leaves a truncated file behind.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
