package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// SessionVault implements domain.SessionVault with one string key per
// session blob. Keys carry no TTL; blob expiry is checked on restore.
type SessionVault struct {
	rdb *redis.Client
}

// NewSessionVault creates a SessionVault backed by the given Client.
func NewSessionVault(c *Client) *SessionVault {
	return &SessionVault{rdb: c.Underlying()}
}

func sessionKey(key string) string {
	return "session:" + key
}

func (v *SessionVault) Load(ctx context.Context, key string) (string, error) {
	blob, err := v.rdb.Get(ctx, sessionKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("redis: load session %s: %w", key, err)
	}
	return blob, nil
}

func (v *SessionVault) Save(ctx context.Context, key, blob string) error {
	if err := v.rdb.Set(ctx, sessionKey(key), blob, 0).Err(); err != nil {
		return fmt.Errorf("redis: save session %s: %w", key, err)
	}
	return nil
}

func (v *SessionVault) Delete(ctx context.Context, key string) error {
	if err := v.rdb.Del(ctx, sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: delete session %s: %w", key, err)
	}
	return nil
}

var _ domain.SessionVault = (*SessionVault)(nil)
