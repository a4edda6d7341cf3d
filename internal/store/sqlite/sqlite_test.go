package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "nested", "hunch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestSessionVault(t *testing.T) {
	ctx := context.Background()
	v := NewSessionVault(setupTestDB(t))

	_, err := v.Load(ctx, "hunch.sessionKey.serialized.v1")
	assert.ErrorIs(t, err, domain.ErrNoSession)

	require.NoError(t, v.Save(ctx, "hunch.sessionKey.serialized.v1", "first"))
	require.NoError(t, v.Save(ctx, "hunch.sessionKey.serialized.v1", "second"))

	got, err := v.Load(ctx, "hunch.sessionKey.serialized.v1")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	require.NoError(t, v.Delete(ctx, "hunch.sessionKey.serialized.v1"))
	_, err = v.Load(ctx, "hunch.sessionKey.serialized.v1")
	assert.ErrorIs(t, err, domain.ErrNoSession)

	// Deleting a missing key is not an error.
	assert.NoError(t, v.Delete(ctx, "missing"))
}

func TestSessionVaultInMemory(t *testing.T) {
	d, err := Open(":memory:")
	require.NoError(t, err)
	defer d.Close()

	v := NewSessionVault(d)
	require.NoError(t, v.Save(context.Background(), "k", "blob"))
	got, err := v.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "blob", got)
}

func position(id, user string, at time.Time) domain.Position {
	return domain.Position{
		ID:              id,
		UserID:          user,
		MarketID:        "m-" + id,
		Question:        "Will it happen?",
		Side:            domain.SideYes,
		Stake:           decimal.RequireFromString("12.5"),
		EntryYesPercent: 64,
		CreatedAt:       at,
	}
}

func TestPositionStore(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore(setupTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, position("a", "alice", base)))
	require.NoError(t, s.Create(ctx, position("b", "alice", base.Add(time.Hour))))
	require.NoError(t, s.Create(ctx, position("c", "bob", base.Add(2*time.Hour))))

	err := s.Create(ctx, position("a", "alice", base))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	t.Run("list by user newest first", func(t *testing.T) {
		got, err := s.ListByUser(ctx, "alice", domain.ListOpts{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ID)
		assert.Equal(t, "a", got[1].ID)
		assert.True(t, got[1].Stake.Equal(decimal.RequireFromString("12.5")))
		assert.Equal(t, domain.SideYes, got[1].Side)
		assert.Equal(t, 64, got[1].EntryYesPercent)
	})

	t.Run("paging", func(t *testing.T) {
		got, err := s.ListByUser(ctx, "alice", domain.ListOpts{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID)
	})

	t.Run("archive window", func(t *testing.T) {
		cutoff := base.Add(90 * time.Minute)
		old, err := s.ListBefore(ctx, cutoff, 10)
		require.NoError(t, err)
		require.Len(t, old, 2)
		assert.Equal(t, "a", old[0].ID)

		n, err := s.DeleteBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		rest, err := s.ListByUser(ctx, "bob", domain.ListOpts{})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})
}
