package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, contentTypeJSONL)
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type memPositions struct {
	mu   sync.Mutex
	rows []domain.Position
}

func (s *memPositions) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, p)
	return nil
}

func (s *memPositions) ListByUser(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, errors.New("not used")
}

func (s *memPositions) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.rows {
		if p.CreatedAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memPositions) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, p := range s.rows {
		if p.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, p)
	}
	s.rows = kept
	return n, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func seed(store *memPositions, base time.Time, offsets ...time.Duration) {
	for i, off := range offsets {
		_ = store.Create(context.Background(), domain.Position{
			ID:        fmt.Sprintf("p%d", i),
			UserID:    "alice",
			MarketID:  "m",
			Side:      domain.SideYes,
			Stake:     decimal.NewFromInt(10),
			CreatedAt: base.Add(off),
		})
	}
}

func archivedIDs(t *testing.T, blobs *memBlobs) []string {
	t.Helper()
	var ids []string
	for _, data := range blobs.objects {
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			var p domain.Position
			require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func TestArchivePositions(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cutoff := base.Add(10 * time.Hour)

	t.Run("moves old rows and keeps recent", func(t *testing.T) {
		store := &memPositions{}
		seed(store, base, time.Hour, 2*time.Hour, 20*time.Hour)
		blobs := newMemBlobs()
		audit := &memAudit{}

		a := NewArchiver(blobs, blobs, store, audit, "positions", slog.Default())
		n, err := a.ArchivePositions(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, []string{"p0", "p1"}, archivedIDs(t, blobs))
		require.Len(t, store.rows, 1)
		assert.Equal(t, "p2", store.rows[0].ID)
		assert.Equal(t, []string{"archive.positions"}, audit.events)
		assert.Contains(t, blobs.objects, "positions/2026/01/01/positions-20260101T100000Z-0000.jsonl")
	})

	t.Run("batch boundary with shared timestamps archives each row once", func(t *testing.T) {
		store := &memPositions{}
		// p1 and p2 share a timestamp at the end of the first batch.
		seed(store, base, time.Hour, 2*time.Hour, 2*time.Hour, 3*time.Hour, 4*time.Hour)
		blobs := newMemBlobs()

		a := NewArchiver(blobs, blobs, store, nil, "", slog.Default())
		a.batch = 3
		n, err := a.ArchivePositions(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, []string{"p0", "p1", "p2", "p3", "p4"}, archivedIDs(t, blobs))
		assert.Empty(t, store.rows)
	})

	t.Run("upload failure keeps rows", func(t *testing.T) {
		store := &memPositions{}
		seed(store, base, time.Hour)
		blobs := newMemBlobs()
		blobs.putErr = errors.New("bucket gone")

		a := NewArchiver(blobs, blobs, store, nil, "", slog.Default())
		n, err := a.ArchivePositions(context.Background(), cutoff)
		require.Error(t, err)
		assert.Zero(t, n)
		assert.Len(t, store.rows, 1)
	})

	t.Run("nothing to archive", func(t *testing.T) {
		store := &memPositions{}
		seed(store, base, 20*time.Hour)
		blobs := newMemBlobs()

		a := NewArchiver(blobs, blobs, store, nil, "", slog.Default())
		n, err := a.ArchivePositions(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, blobs.objects)
	})
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
	assert.Equal(t, "https://minio.local", normaliseEndpoint("minio.local", true))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
}
