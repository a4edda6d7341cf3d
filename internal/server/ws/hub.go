// Package ws bridges signal bus channels to WebSocket clients. Each
// connection belongs to one user and only receives that user's events.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hunch/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256
)

// Event kinds a client can subscribe to.
const (
	KindDeck      = "deck"
	KindCountdown = "countdown"
	KindWallet    = "wallet"
)

// channelKinds maps bus patterns to the event kind they carry.
var channelKinds = map[string]string{
	domain.ChannelDeck + ":*":      KindDeck,
	domain.ChannelCountdown + ":*": KindCountdown,
	domain.ChannelWallet + ":*":    KindWallet,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the frame sent to clients.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeMsg is the JSON message a client sends to change its kinds.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Kinds  []string `json:"kinds"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	mu     sync.RWMutex
	kinds  map[string]bool
}

type broadcastMsg struct {
	kind   string
	userID string
	data   []byte
}

// Hub manages connected WebSocket clients and fans bus events out to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a hub fed by bus.
func NewHub(bus domain.SignalBus, mode string, logger *slog.Logger) *Hub {
	if mode == "" {
		mode = "unknown"
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  time.Now(),
	}
}

// Run subscribes to the bus and serves registrations and broadcasts until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for pattern, kind := range channelKinds {
		go h.subscribeToChannel(ctx, pattern, kind)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.String("user_id", c.userID),
				slog.Int("total_clients", h.ClientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.String("user_id", c.userID),
				slog.Int("total_clients", h.ClientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.userID != msg.userID || !c.isSubscribed(msg.kind) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("user_id", c.userID),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// route extracts the owning user from a bus payload and wraps it for
// clients.
func route(kind string, payload []byte) (broadcastMsg, bool) {
	var owner struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(payload, &owner); err != nil || owner.UserID == "" {
		return broadcastMsg{}, false
	}
	data, err := json.Marshal(envelope{Type: kind, Payload: payload})
	if err != nil {
		return broadcastMsg{}, false
	}
	return broadcastMsg{kind: kind, userID: owner.UserID, data: data}, true
}

func (h *Hub) subscribeToChannel(ctx context.Context, pattern, kind string) {
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", pattern),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", pattern))
				return
			}
			msg, ok := route(kind, data)
			if !ok {
				continue
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers a client for the user named by
// the X-Hunch-User header or the user query parameter.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.Header.Get("X-Hunch-User"))
	if user == "" {
		user = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	if user == "" {
		user = "default"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: user,
		send:   make(chan []byte, sendBufferSize),
		kinds:  map[string]bool{KindDeck: true, KindCountdown: true, KindWallet: true},
	}

	c.sendInitialStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range msg.Kinds {
		switch msg.Action {
		case "subscribe":
			c.kinds[k] = true
		case "unsubscribe":
			delete(c.kinds, k)
		}
	}
}

func (c *client) isSubscribed(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kinds[kind]
}

// sendInitialStatus lets clients mark the connection healthy before any
// deck event flows.
func (c *client) sendInitialStatus() {
	payload, err := json.Marshal(domain.ServiceStatus{
		Mode:          c.hub.mode,
		UptimeSeconds: int64(time.Since(c.hub.startedAt).Seconds()),
	})
	if err != nil {
		return
	}
	msg, err := json.Marshal(envelope{Type: "status", Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
