package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hunch/internal/gesture"
	"github.com/alanyoungcy/hunch/internal/server"
	"github.com/alanyoungcy/hunch/internal/server/handler"
	"github.com/alanyoungcy/hunch/internal/server/ws"
	"github.com/alanyoungcy/hunch/internal/service"
)

const shutdownTimeout = 5 * time.Second

// ServerMode runs the deck API, the WebSocket hub and countdown publishing.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startAPI(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs everything ServerMode does plus the periodic journal archive.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startAPI(ctx, g, deps); err != nil {
		return err
	}

	if deps.Archiver != nil {
		archive := service.NewArchiveService(
			deps.Archiver,
			a.cfg.Archive.Interval.Duration,
			a.cfg.Archive.RetentionDays,
			a.logger,
		)
		g.Go(func() error {
			return archive.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "archive disabled: s3 is not configured")
	}

	return g.Wait()
}

// WalletMode ensures the default user's wallet is set up, restoring a
// persisted session when there is one, and prints the resulting status.
func (a *App) WalletMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting wallet mode")
	if !a.cfg.Wallet.Enabled {
		return fmt.Errorf("app: wallet mode requires wallet.enabled")
	}

	wallets, closeRPC, err := a.newWalletService(ctx, deps)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeRPC)

	st, err := wallets.Setup(ctx, handler.DefaultUser)
	if err != nil {
		return fmt.Errorf("app: wallet setup: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("app: print wallet status: %w", err)
	}
	return nil
}

func (a *App) userLimits() service.UserLimits {
	return service.UserLimits{
		IdleTimeout: a.cfg.Deck.IdleTimeout.Duration,
		MaxUsers:    a.cfg.Deck.MaxActiveUsers,
	}
}

// startAPI builds the deck, position and wallet services and adds the deck
// actor, the hub and the HTTP server to g. The server is shut down
// gracefully when ctx is cancelled.
func (a *App) startAPI(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	startingBalance, err := decimal.NewFromString(a.cfg.Deck.StartingBalance)
	if err != nil {
		return fmt.Errorf("app: deck.starting_balance: %w", err)
	}
	defaultStake, err := decimal.NewFromString(a.cfg.Deck.DefaultStake)
	if err != nil {
		return fmt.Errorf("app: deck.default_stake: %w", err)
	}

	positions := service.NewPositionService(deps.PositionStore, deps.SignalBus, service.PositionConfig{
		StartingBalance: startingBalance,
		DefaultStake:    defaultStake,
		XPPerPosition:   a.cfg.Deck.XPPerPosition,
	}, a.logger)

	gc := a.cfg.Gesture
	decks := service.NewDeckService(deps.Fetcher, positions, deps.SignalBus, deps.Notifier, service.DeckConfig{
		PageSize:            a.cfg.Feed.PageSize,
		FetchAheadThreshold: a.cfg.Deck.FetchAheadThreshold,
		StackDepth:          a.cfg.Deck.StackDepth,
		CountdownInterval:   a.cfg.Deck.CountdownInterval.Duration,
		Limits:              a.userLimits(),
		Gesture: gesture.Config{
			DragSlop:         gc.DragSlop,
			HorizontalRatio:  gc.HorizontalRatio,
			VerticalRatio:    gc.VerticalRatio,
			FlyAwayOvershoot: gc.FlyAwayOvershoot,
			FlyAwayDuration:  gc.FlyAwayDuration.Duration,
			SpringFriction:   gc.SpringFriction,
			SpringTension:    gc.SpringTension,
			MaxRotationDeg:   gc.MaxRotationDeg,
		},
	}, a.logger)
	a.closers = append(a.closers, decks.Close)

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, decks.ActiveDecks, hub.ClientCount),
		Deck:      handler.NewDeckHandler(decks, a.logger),
		Positions: handler.NewPositionHandler(positions, a.logger),
	}
	if a.cfg.Wallet.Enabled {
		wallets, closeRPC, err := a.newWalletService(ctx, deps)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closeRPC)
		handlers.Wallet = handler.NewWalletHandler(wallets, a.logger)
		g.Go(func() error {
			return wallets.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return decks.Run(ctx)
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
	return nil
}
