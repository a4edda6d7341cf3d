package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/server/handler"
	"github.com/alanyoungcy/hunch/internal/server/middleware"
	"github.com/alanyoungcy/hunch/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Wallet may be nil when the wallet is disabled.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Deck      *handler.DeckHandler
	Positions *handler.PositionHandler
	Wallet    *handler.WalletHandler
}

// Server is the HTTP + WebSocket API for the swipe deck.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed and wrapped http.Handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/deck", handlers.Deck.GetDeck)
	mux.HandleFunc("GET /api/deck/categories", handlers.Deck.GetCategories)
	mux.HandleFunc("GET /api/deck/card/{id}", handlers.Deck.GetCard)
	mux.HandleFunc("POST /api/deck/swipe", handlers.Deck.Swipe)
	mux.HandleFunc("POST /api/deck/release", handlers.Deck.Release)
	mux.HandleFunc("POST /api/deck/reset", handlers.Deck.Reset)
	mux.HandleFunc("POST /api/deck/reload", handlers.Deck.Reload)

	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/swipes", handlers.Positions.ListSwipes)

	if handlers.Wallet != nil {
		mux.HandleFunc("GET /api/wallet/status", handlers.Wallet.GetStatus)
		mux.HandleFunc("GET /api/wallet/balance", handlers.Wallet.GetBalance)
		mux.HandleFunc("POST /api/wallet/session", handlers.Wallet.ApproveSession)
		mux.HandleFunc("DELETE /api/wallet/session", handlers.Wallet.ResetSession)
		mux.HandleFunc("POST /api/wallet/operations", handlers.Wallet.SubmitOperation)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
