// Package file keeps session blobs in a single password-encrypted JSON file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/alanyoungcy/hunch/internal/crypto"
	"github.com/alanyoungcy/hunch/internal/domain"
)

// SessionVault implements domain.SessionVault. The whole key/blob map is
// sealed with crypto.Seal and rewritten atomically on every change.
type SessionVault struct {
	path     string
	password string

	mu     sync.Mutex
	loaded bool
	blobs  map[string]string
}

// NewSessionVault returns a vault stored at path. The file is created on
// first Save.
func NewSessionVault(path, password string) (*SessionVault, error) {
	if password == "" {
		return nil, fmt.Errorf("file: session vault %s: %w", path, crypto.ErrEmptyPassword)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("file: create dir for %s: %w", path, err)
	}
	return &SessionVault{path: path, password: password}, nil
}

// load reads and decrypts the file once. Callers hold v.mu.
func (v *SessionVault) load() error {
	if v.loaded {
		return nil
	}
	sealed, err := os.ReadFile(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		v.blobs = make(map[string]string)
		v.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("file: read %s: %w", v.path, err)
	}

	plain, err := crypto.Open(sealed, v.password)
	if err != nil {
		return fmt.Errorf("file: open %s: %w", v.path, err)
	}
	blobs := make(map[string]string)
	if err := json.Unmarshal(plain, &blobs); err != nil {
		return fmt.Errorf("file: decode %s: %w", v.path, err)
	}
	v.blobs = blobs
	v.loaded = true
	return nil
}

func (v *SessionVault) flush() error {
	plain, err := json.Marshal(v.blobs)
	if err != nil {
		return fmt.Errorf("file: encode sessions: %w", err)
	}
	sealed, err := crypto.Seal(plain, v.password)
	if err != nil {
		return fmt.Errorf("file: seal sessions: %w", err)
	}
	if err := crypto.WriteFileAtomic(v.path, sealed, 0o600); err != nil {
		return fmt.Errorf("file: write %s: %w", v.path, err)
	}
	return nil
}

func (v *SessionVault) Load(_ context.Context, key string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.load(); err != nil {
		return "", err
	}
	blob, ok := v.blobs[key]
	if !ok {
		return "", domain.ErrNoSession
	}
	return blob, nil
}

func (v *SessionVault) Save(_ context.Context, key, blob string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.load(); err != nil {
		return err
	}
	prev, had := v.blobs[key]
	v.blobs[key] = blob
	if err := v.flush(); err != nil {
		if had {
			v.blobs[key] = prev
		} else {
			delete(v.blobs, key)
		}
		return err
	}
	return nil
}

func (v *SessionVault) Delete(_ context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.load(); err != nil {
		return err
	}
	prev, had := v.blobs[key]
	if !had {
		return nil
	}
	delete(v.blobs, key)
	if err := v.flush(); err != nil {
		v.blobs[key] = prev
		return err
	}
	return nil
}

var _ domain.SessionVault = (*SessionVault)(nil)
