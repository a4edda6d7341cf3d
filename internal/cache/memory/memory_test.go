package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func TestSignalBus_PatternSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewSignalBus()

	all, err := b.Subscribe(ctx, "ch:deck:*")
	require.NoError(t, err)
	bob, err := b.Subscribe(ctx, "ch:deck:bob")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "ch:deck:alice", []byte("a")))
	require.NoError(t, b.Publish(ctx, "ch:deck:bob", []byte("b")))
	require.NoError(t, b.Publish(ctx, "ch:wallet:bob", []byte("w")))

	assert.Equal(t, []byte("a"), <-all)
	assert.Equal(t, []byte("b"), <-all)
	assert.Equal(t, []byte("b"), <-bob)

	select {
	case msg := <-all:
		t.Fatalf("unexpected message %q", msg)
	default:
	}

	cancel()
	_, open := <-all
	assert.False(t, open)
}

func TestSignalBus_Stream(t *testing.T) {
	ctx := context.Background()
	b := NewSignalBus()
	for _, p := range []string{"one", "two", "three"} {
		require.NoError(t, b.StreamAppend(ctx, domain.StreamSwipes, []byte(p)))
	}

	first, err := b.StreamRead(ctx, domain.StreamSwipes, "0", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, []byte("one"), first[0].Payload)

	rest, err := b.StreamRead(ctx, domain.StreamSwipes, first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("three"), rest[0].Payload)

	_, err = b.StreamRead(ctx, domain.StreamSwipes, "nope", 1)
	assert.Error(t, err)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lm.now = func() time.Time { return now }

	unlock, err := lm.Acquire(ctx, "approve:alice", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "approve:alice", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := lm.Acquire(ctx, "approve:bob", time.Minute)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, "approve:alice", time.Minute)
	require.NoError(t, err)

	// An expired holder's late unlock must not release the new holder.
	now = now.Add(2 * time.Minute)
	taken, err := lm.Acquire(ctx, "approve:alice", time.Minute)
	require.NoError(t, err)
	again()
	_, err = lm.Acquire(ctx, "approve:alice", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	taken()
}
