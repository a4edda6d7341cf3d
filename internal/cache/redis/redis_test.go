package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "deck:page:20:40", pageKey(20, 40))
	assert.Equal(t, "lock:approve:alice", lockKey("approve:alice"))
	assert.Equal(t, "ratelimit:127.0.0.1", rateLimitKey("127.0.0.1"))
	assert.Equal(t, "session:hunch.sessionKey.serialized.v1:bob", sessionKey("hunch.sessionKey.serialized.v1:bob"))
}

func TestStreamPayload(t *testing.T) {
	got, ok := streamPayload(map[string]any{"payload": "abc"})
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), got)

	got, ok = streamPayload(map[string]any{"payload": []byte("xyz")})
	assert.True(t, ok)
	assert.Equal(t, []byte("xyz"), got)

	_, ok = streamPayload(map[string]any{"other": "abc"})
	assert.False(t, ok)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}

// integrationClient connects to HUNCH_TEST_REDIS_ADDR or skips.
func integrationClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("HUNCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HUNCH_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_LockManager(t *testing.T) {
	c := integrationClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()
	key := "approve:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestIntegration_RateLimiter(t *testing.T) {
	c := integrationClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()
	key := uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_PageCacheAndVault(t *testing.T) {
	c := integrationClient(t)
	ctx := context.Background()

	pc := NewPageCache(c)
	offset := int(time.Now().UnixNano() % 100000)
	_, err := pc.GetPage(ctx, 20, offset)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page := domain.Page{Cards: []domain.Market{{ID: "m1", Question: "Q?"}}, FetchedCount: 1}
	require.NoError(t, pc.SetPage(ctx, 20, offset, page, time.Minute))
	got, err := pc.GetPage(ctx, 20, offset)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.Cards[0].ID)

	v := NewSessionVault(c)
	key := uuid.NewString()
	_, err = v.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNoSession)
	require.NoError(t, v.Save(ctx, key, "blob"))
	blob, err := v.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "blob", blob)
	require.NoError(t, v.Delete(ctx, key))
}

func TestIntegration_SignalBusStream(t *testing.T) {
	c := integrationClient(t)
	sb := NewSignalBus(c)
	ctx := context.Background()
	stream := "test:stream:" + uuid.NewString()

	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("one")))
	require.NoError(t, sb.StreamAppend(ctx, stream, []byte("two")))

	msgs, err := sb.StreamRead(ctx, stream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("one"), msgs[0].Payload)

	rest, err := sb.StreamRead(ctx, stream, msgs[1].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}
