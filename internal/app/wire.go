package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/hunch/internal/blob/s3"
	"github.com/alanyoungcy/hunch/internal/cache/memory"
	"github.com/alanyoungcy/hunch/internal/cache/redis"
	"github.com/alanyoungcy/hunch/internal/config"
	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/notify"
	"github.com/alanyoungcy/hunch/internal/platform/marketapi"
	"github.com/alanyoungcy/hunch/internal/server/handler"
	"github.com/alanyoungcy/hunch/internal/store/file"
	"github.com/alanyoungcy/hunch/internal/store/postgres"
	"github.com/alanyoungcy/hunch/internal/store/sqlite"
	"github.com/alanyoungcy/hunch/internal/wallet"
)

// notifyCooldown suppresses repeats of the same notice.
const notifyCooldown = 5 * time.Minute

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore
	SessionVault  domain.SessionVault

	// Caches
	PageCache   domain.PageCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	// Market feed, cached when Redis is available.
	Fetcher domain.PageFetcher

	Notifier *notify.Notifier

	// Health checks reported by GET /api/health.
	Health map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Health: make(map[string]handler.HealthCheck)}
	backend := strings.ToLower(cfg.SessionStore.Backend)

	// --- PostgreSQL ---
	var pgClient *postgres.Client
	if cfg.Supabase.Enabled {
		var err error
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient.Ping
	}

	// --- SQLite: positions without Postgres, and the sqlite session backend ---
	var sqliteDB *sqlite.DB
	if deps.PositionStore == nil || backend == "sqlite" {
		var err error
		sqliteDB, err = sqlite.Open(cfg.SessionStore.SQLitePath)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = sqliteDB.Close() })
		if deps.PositionStore == nil {
			deps.PositionStore = sqlite.NewPositionStore(sqliteDB)
		}
	}

	// --- Redis, or in-process fallbacks ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PageCache = redis.NewPageCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Health["redis"] = redisClient.Ping
	} else {
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- Session vault ---
	switch backend {
	case "memory":
		deps.SessionVault = wallet.NewMemoryVault()
	case "file":
		v, err := file.NewSessionVault(cfg.SessionStore.FilePath, cfg.Wallet.KeystorePassword)
		if err != nil {
			return fail("session vault", err)
		}
		deps.SessionVault = v
	case "sqlite":
		deps.SessionVault = sqlite.NewSessionVault(sqliteDB)
	case "redis":
		if redisClient == nil {
			return fail("session vault", fmt.Errorf("backend redis requires redis.enabled"))
		}
		deps.SessionVault = redis.NewSessionVault(redisClient)
	case "postgres":
		if pgClient == nil {
			return fail("session vault", fmt.Errorf("backend postgres requires supabase.enabled"))
		}
		deps.SessionVault = postgres.NewSessionVault(pgClient.Pool())
	default:
		return fail("session vault", fmt.Errorf("unknown backend %q", cfg.SessionStore.Backend))
	}

	// --- S3 archive of the position journal ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.PositionStore,
			deps.AuditStore,
			cfg.Archive.Prefix,
			logger,
		)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Market feed ---
	client := marketapi.NewClient(cfg.Feed.BaseURL, cfg.Feed.Endpoints, logger,
		marketapi.WithTimeout(cfg.Feed.Timeout.Duration),
	)
	deps.Fetcher = client
	if deps.PageCache != nil && cfg.Feed.CacheTTL.Duration > 0 {
		deps.Fetcher = marketapi.NewCachedFetcher(client, deps.PageCache, cfg.Feed.CacheTTL.Duration, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		senders = append(senders, notify.LogSender{Logger: logger})
	}
	deps.Notifier = notify.NewNotifier(senders, notify.Options{
		Events:   cfg.Notify.Events,
		Cooldown: notifyCooldown,
	}, logger)

	return deps, cleanup, nil
}
