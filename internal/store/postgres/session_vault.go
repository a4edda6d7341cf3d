package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// SessionVault implements domain.SessionVault on the session_vault table.
type SessionVault struct {
	pool *pgxpool.Pool
}

// NewSessionVault creates a SessionVault backed by the given pool.
func NewSessionVault(pool *pgxpool.Pool) *SessionVault {
	return &SessionVault{pool: pool}
}

func (v *SessionVault) Load(ctx context.Context, key string) (string, error) {
	var blob string
	err := v.pool.QueryRow(ctx, `SELECT blob FROM session_vault WHERE key = $1`, key).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("postgres: load session %s: %w", key, err)
	}
	return blob, nil
}

func (v *SessionVault) Save(ctx context.Context, key, blob string) error {
	const query = `
		INSERT INTO session_vault (key, blob, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()`
	if _, err := v.pool.Exec(ctx, query, key, blob); err != nil {
		return fmt.Errorf("postgres: save session %s: %w", key, err)
	}
	return nil
}

func (v *SessionVault) Delete(ctx context.Context, key string) error {
	if _, err := v.pool.Exec(ctx, `DELETE FROM session_vault WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete session %s: %w", key, err)
	}
	return nil
}

var _ domain.SessionVault = (*SessionVault)(nil)
