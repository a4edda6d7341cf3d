package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// PageCache implements domain.PageCache. Each (limit, offset) window is one
// JSON string key:
//
//	deck:page:{limit}:{offset}
type PageCache struct {
	rdb *redis.Client
}

// NewPageCache creates a PageCache backed by the given Client.
func NewPageCache(c *Client) *PageCache {
	return &PageCache{rdb: c.Underlying()}
}

func pageKey(limit, offset int) string {
	return fmt.Sprintf("deck:page:%d:%d", limit, offset)
}

// GetPage returns domain.ErrNotFound on a miss.
func (pc *PageCache) GetPage(ctx context.Context, limit, offset int) (domain.Page, error) {
	data, err := pc.rdb.Get(ctx, pageKey(limit, offset)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Page{}, domain.ErrNotFound
		}
		return domain.Page{}, fmt.Errorf("redis: get page %d/%d: %w", limit, offset, err)
	}

	var page domain.Page
	if err := json.Unmarshal(data, &page); err != nil {
		return domain.Page{}, fmt.Errorf("redis: unmarshal page %d/%d: %w", limit, offset, err)
	}
	return page, nil
}

// SetPage stores page for ttl. Empty pages are not cached; they mean the
// upstream failed or ran dry and the next request should retry.
func (pc *PageCache) SetPage(ctx context.Context, limit, offset int, page domain.Page, ttl time.Duration) error {
	if page.FetchedCount == 0 {
		return nil
	}
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("redis: marshal page %d/%d: %w", limit, offset, err)
	}
	if err := pc.rdb.Set(ctx, pageKey(limit, offset), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set page %d/%d: %w", limit, offset, err)
	}
	return nil
}

var _ domain.PageCache = (*PageCache)(nil)
