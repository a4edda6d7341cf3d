package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/cache/memory"
	"github.com/alanyoungcy/hunch/internal/domain"
)

func TestRoute(t *testing.T) {
	msg, ok := route(KindDeck, []byte(`{"userId":"alice","visible":3}`))
	require.True(t, ok)
	assert.Equal(t, "alice", msg.userID)

	var env envelope
	require.NoError(t, json.Unmarshal(msg.data, &env))
	assert.Equal(t, KindDeck, env.Type)
	assert.JSONEq(t, `{"userId":"alice","visible":3}`, string(env.Payload))

	_, ok = route(KindDeck, []byte(`{"visible":3}`))
	assert.False(t, ok)
	_, ok = route(KindDeck, []byte(`nope`))
	assert.False(t, ok)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubDeliversOnlyOwnEvents(t *testing.T) {
	bus := memory.NewSignalBus()
	hub := NewHub(bus, "server", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=alice"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "status", readEnvelope(t, conn).Type)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Retry until the hub's pattern subscriptions are live.
	deadline := time.Now().Add(2 * time.Second)
	got := make(chan envelope, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if json.Unmarshal(data, &env) == nil {
			got <- env
		}
	}()
	for {
		_ = bus.Publish(ctx, domain.ChannelDeck+":bob", []byte(`{"userId":"bob"}`))
		_ = bus.Publish(ctx, domain.ChannelCountdown+":alice", []byte(`{"userId":"alice","marketId":"m1","text":"1h 2m"}`))
		select {
		case env := <-got:
			assert.Equal(t, KindCountdown, env.Type)
			assert.Contains(t, string(env.Payload), `"marketId":"m1"`)
			return
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no event delivered")
		}
	}
}
