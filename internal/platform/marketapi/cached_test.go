package marketapi

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

type mockFetcher struct {
	calls int
	page  domain.Page
}

func (m *mockFetcher) FetchPage(ctx context.Context, limit, offset int) domain.Page {
	m.calls++
	return m.page
}

type mockPageCache struct {
	pages   map[string]domain.Page
	readErr error
	sets    int
}

var _ domain.PageCache = (*mockPageCache)(nil)

func key(limit, offset int) string { return fmt.Sprintf("%d:%d", limit, offset) }

func (m *mockPageCache) GetPage(ctx context.Context, limit, offset int) (domain.Page, error) {
	if m.readErr != nil {
		return domain.Page{}, m.readErr
	}
	p, ok := m.pages[key(limit, offset)]
	if !ok {
		return domain.Page{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockPageCache) SetPage(ctx context.Context, limit, offset int, page domain.Page, ttl time.Duration) error {
	m.sets++
	m.pages[key(limit, offset)] = page
	return nil
}

func TestCachedFetcher(t *testing.T) {
	ctx := context.Background()
	closeAt := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	next := &mockFetcher{page: domain.Page{
		Cards:        []domain.Market{{ID: "a", ClosingAt: &closeAt, ClosingInText: "stale"}},
		FetchedCount: 1,
	}}
	cache := &mockPageCache{pages: map[string]domain.Page{}}

	f := NewCachedFetcher(next, cache, time.Minute, quietLogger())
	f.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC) }

	first := f.FetchPage(ctx, 20, 0)
	require.Len(t, first.Cards, 1)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, cache.sets)

	second := f.FetchPage(ctx, 20, 0)
	assert.Equal(t, 1, next.calls, "served from cache")
	assert.Equal(t, "30sec", second.Cards[0].ClosingInText)

	t.Run("empty pages are not cached", func(t *testing.T) {
		next.page = domain.Page{}
		f.FetchPage(ctx, 20, 20)
		f.FetchPage(ctx, 20, 20)
		assert.Equal(t, 3, next.calls)
		assert.Equal(t, 1, cache.sets)
	})

	t.Run("cache errors fall through", func(t *testing.T) {
		cache.readErr = errors.New("redis down")
		next.page = domain.Page{Cards: []domain.Market{{ID: "z"}}, FetchedCount: 1}
		page := f.FetchPage(ctx, 20, 0)
		assert.Equal(t, "z", page.Cards[0].ID)
	})
}
