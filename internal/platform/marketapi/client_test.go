package marketapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchPageEnvelopes(t *testing.T) {
	bodies := map[string]string{
		"bare array":     `[{"id":"a"},{"id":"b"}]`,
		"markets":        `{"success":true,"markets":[{"id":"a"},{"id":"b"}]}`,
		"data":           `{"data":[{"id":"a"},{"id":"b"}]}`,
		"results":        `{"results":[{"id":"a"},{"id":"b"}]}`,
		"nested markets": `{"markets":{"data":[{"id":"a"},{"id":"b"}],"total":2}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, []string{"/api/markets"}, quietLogger())
			page := c.FetchPage(context.Background(), 20, 0)
			require.Len(t, page.Cards, 2)
			assert.Equal(t, 2, page.FetchedCount)
			assert.Equal(t, "a", page.Cards[0].ID)
			assert.Equal(t, "b", page.Cards[1].ID)
		})
	}
}

func TestFetchPageFirstShapeWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"markets":[{"id":"m"}],"data":[{"id":"d1"},{"id":"d2"}]}`)
	}))
	defer srv.Close()

	page := NewClient(srv.URL, []string{"/api/markets"}, quietLogger()).FetchPage(context.Background(), 20, 0)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "m", page.Cards[0].ID)
}

func TestFetchPageQueryAndFallback(t *testing.T) {
	var primaryHits, fallbackHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/markets", func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "40", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `{"markets":[]}`)
	})
	mux.HandleFunc("/apiu/markets", func(w http.ResponseWriter, r *http.Request) {
		fallbackHits.Add(1)
		assert.Equal(t, "40", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `[{"id":"x"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/", []string{"/api/markets", "apiu/markets"}, quietLogger())
	page := c.FetchPage(context.Background(), 20, 40)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "x", page.Cards[0].ID)
	assert.Equal(t, int32(1), primaryHits.Load())
	assert.Equal(t, int32(1), fallbackHits.Load())
}

func TestFetchPageNeverFails(t *testing.T) {
	t.Run("server errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		page := NewClient(srv.URL, []string{"/a", "/b"}, quietLogger()).FetchPage(context.Background(), 20, 0)
		assert.NotNil(t, page.Cards)
		assert.Empty(t, page.Cards)
		assert.Equal(t, 0, page.FetchedCount)
	})

	t.Run("not json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>maintenance</html>")
		}))
		defer srv.Close()

		page := NewClient(srv.URL, []string{"/a"}, quietLogger()).FetchPage(context.Background(), 20, 0)
		assert.Equal(t, 0, page.FetchedCount)
	})

	t.Run("unknown envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"items":[{"id":"a"}]}`)
		}))
		defer srv.Close()

		page := NewClient(srv.URL, []string{"/a"}, quietLogger()).FetchPage(context.Background(), 20, 0)
		assert.Equal(t, 0, page.FetchedCount)
	})

	t.Run("timeout moves to next endpoint", func(t *testing.T) {
		release := make(chan struct{})
		mux := http.NewServeMux()
		mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[{"id":"fast"}]`)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		defer close(release)

		c := NewClient(srv.URL, []string{"/slow", "/fast"}, quietLogger(), WithTimeout(50*time.Millisecond))
		start := time.Now()
		page := c.FetchPage(context.Background(), 20, 0)
		require.Len(t, page.Cards, 1)
		assert.Equal(t, "fast", page.Cards[0].ID)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("unreachable", func(t *testing.T) {
		page := NewClient("http://127.0.0.1:1", []string{"/a"}, quietLogger(), WithTimeout(200*time.Millisecond)).
			FetchPage(context.Background(), 20, 0)
		assert.Equal(t, 0, page.FetchedCount)
	})
}

func TestFetchPageIsolatesBadRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"a","yesPercent":0.5}, 17, {"id":"c","question":["bad"]}]`)
	}))
	defer srv.Close()

	page := NewClient(srv.URL, []string{"/api/markets"}, quietLogger()).FetchPage(context.Background(), 20, 0)
	require.Len(t, page.Cards, 3)
	assert.Equal(t, 3, page.FetchedCount)
	assert.Equal(t, 50, page.Cards[0].YesPercent)
	assert.Equal(t, "Untitled", page.Cards[1].Question)
	assert.Equal(t, "c", page.Cards[2].ID)
	assert.Equal(t, "Untitled", page.Cards[2].Question)
}

func TestFetchPageAbsoluteEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/feed", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"abs"}]`)
	}))
	defer srv.Close()

	page := NewClient("https://unused.invalid", []string{srv.URL + "/v2/feed"}, quietLogger()).
		FetchPage(context.Background(), 5, 0)
	require.Len(t, page.Cards, 1)
}
