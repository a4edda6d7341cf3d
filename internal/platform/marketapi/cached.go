package marketapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// CachedFetcher serves pages from a PageCache and falls through to the
// wrapped fetcher on a miss. Empty pages are not cached so a backend outage
// is not remembered past the outage.
type CachedFetcher struct {
	next   domain.PageFetcher
	cache  domain.PageCache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedFetcher wraps next with cache. A non-positive ttl disables caching.
func NewCachedFetcher(next domain.PageFetcher, cache domain.PageCache, ttl time.Duration, logger *slog.Logger) *CachedFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "marketapi_cache")),
		now:    time.Now,
	}
}

var _ domain.PageFetcher = (*CachedFetcher)(nil)

// FetchPage implements domain.PageFetcher.
func (f *CachedFetcher) FetchPage(ctx context.Context, limit, offset int) domain.Page {
	if f.cache == nil || f.ttl <= 0 {
		return f.next.FetchPage(ctx, limit, offset)
	}

	page, err := f.cache.GetPage(ctx, limit, offset)
	switch {
	case err == nil:
		// Countdown text was computed when the page was fetched.
		now := f.now()
		for i := range page.Cards {
			page.Cards[i].ClosingInText = Countdown(page.Cards[i], now)
		}
		return page
	case !errors.Is(err, domain.ErrNotFound):
		f.logger.WarnContext(ctx, "marketapi: page cache read failed", slog.String("error", err.Error()))
	}

	page = f.next.FetchPage(ctx, limit, offset)
	if page.FetchedCount == 0 {
		return page
	}
	if err := f.cache.SetPage(ctx, limit, offset, page, f.ttl); err != nil {
		f.logger.WarnContext(ctx, "marketapi: page cache write failed", slog.String("error", err.Error()))
	}
	return page
}
