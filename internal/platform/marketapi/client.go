// Package marketapi is the REST client for the Hunch market feed. It pages
// through the backend's market list, accepts every response envelope the
// backend has shipped, and normalizes each record into a domain.Market.
package marketapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// DefaultTimeout bounds each endpoint attempt.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 8 << 20

// Client fetches market pages from an ordered list of candidate endpoints.
type Client struct {
	baseURL    string
	endpoints  []string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-endpoint timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock sets the clock used to precompute countdown text.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a market API client.
//
// baseURL is the API root, e.g. "https://hunch-backend-production.up.railway.app".
// endpoints are tried in order; each may be a path or an absolute URL.
func NewClient(baseURL string, endpoints []string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoints:  endpoints,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		logger:     logger.With(slog.String("component", "marketapi")),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ domain.PageFetcher = (*Client)(nil)

// FetchPage returns one page of markets. It never fails: when every endpoint
// errors, times out, or returns no records, the result is an empty page with
// FetchedCount 0.
func (c *Client) FetchPage(ctx context.Context, limit, offset int) domain.Page {
	for _, ep := range c.endpoints {
		if ctx.Err() != nil {
			break
		}
		records, err := c.fetchRecords(ctx, ep, limit, offset)
		if err != nil {
			c.logger.WarnContext(ctx, "marketapi: endpoint failed",
				slog.String("endpoint", ep),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(records) == 0 {
			c.logger.WarnContext(ctx, "marketapi: endpoint returned empty or unexpected shape",
				slog.String("endpoint", ep),
			)
			continue
		}

		now := c.now()
		cards := make([]domain.Market, 0, len(records))
		for i, rec := range records {
			m, err := normalizeRecord(rec, now)
			if err != nil {
				c.logger.WarnContext(ctx, "marketapi: record degraded to defaults",
					slog.String("endpoint", ep),
					slog.Int("index", i),
					slog.String("error", err.Error()),
				)
			}
			cards = append(cards, m)
		}
		return domain.Page{Cards: cards, FetchedCount: len(records)}
	}

	c.logger.WarnContext(ctx, "marketapi: all endpoints failed or returned unexpected data",
		slog.Int("limit", limit),
		slog.Int("offset", offset),
	)
	return domain.Page{Cards: []domain.Market{}}
}

// fetchRecords performs one bounded GET and extracts the record array.
func (c *Client) fetchRecords(ctx context.Context, endpoint string, limit, offset int) ([]rawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := c.doGet(ctx, c.buildURL(endpoint)+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	records, err := extractRecords(body)
	if err != nil {
		return nil, fmt.Errorf("marketapi: decode envelope: %w", err)
	}
	return records, nil
}

func (c *Client) buildURL(endpoint string) string {
	lower := strings.ToLower(endpoint)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

// doGet executes an HTTP GET request and returns the response body.
func (c *Client) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("marketapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketapi: execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("marketapi: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("marketapi: unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
