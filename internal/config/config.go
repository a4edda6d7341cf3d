// Package config defines the top-level configuration for the hunch service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HUNCH_* environment variables.
type Config struct {
	Feed         FeedConfig         `toml:"feed"`
	Deck         DeckConfig         `toml:"deck"`
	Gesture      GestureConfig      `toml:"gesture"`
	Wallet       WalletConfig       `toml:"wallet"`
	SessionStore SessionStoreConfig `toml:"session_store"`
	Supabase     SupabaseConfig     `toml:"supabase"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Archive      ArchiveConfig      `toml:"archive"`
	Server       ServerConfig       `toml:"server"`
	Notify       NotifyConfig       `toml:"notify"`
	Log          LogConfig          `toml:"log"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// FeedConfig describes the remote market API.
type FeedConfig struct {
	BaseURL   string   `toml:"base_url"`
	Endpoints []string `toml:"endpoints"`
	Timeout   duration `toml:"timeout"`
	PageSize  int      `toml:"page_size"`
	// CacheTTL is how long a fetched page is kept in Redis. Zero disables
	// the page cache.
	CacheTTL duration `toml:"cache_ttl"`
}

// DeckConfig holds deck pagination and position parameters.
type DeckConfig struct {
	FetchAheadThreshold int      `toml:"fetch_ahead_threshold"`
	StackDepth          int      `toml:"stack_depth"`
	CountdownInterval   duration `toml:"countdown_interval"`
	StartingBalance     string   `toml:"starting_balance"`
	DefaultStake        string   `toml:"default_stake"`
	XPPerPosition       int      `toml:"xp_per_position"`
	// IdleTimeout and MaxActiveUsers bound the per-user decks and wallet
	// lifecycles held in memory.
	IdleTimeout    duration `toml:"idle_timeout"`
	MaxActiveUsers int      `toml:"max_active_users"`
}

// GestureConfig holds swipe classification and animation parameters.
type GestureConfig struct {
	DragSlop         float64  `toml:"drag_slop"`
	HorizontalRatio  float64  `toml:"horizontal_ratio"`
	VerticalRatio    float64  `toml:"vertical_ratio"`
	FlyAwayOvershoot float64  `toml:"fly_away_overshoot"`
	FlyAwayDuration  duration `toml:"fly_away_duration"`
	SpringFriction   float64  `toml:"spring_friction"`
	SpringTension    float64  `toml:"spring_tension"`
	MaxRotationDeg   float64  `toml:"max_rotation_deg"`
}

// WalletConfig holds embedded-wallet, chain and smart-account parameters.
type WalletConfig struct {
	Enabled bool `toml:"enabled"`

	ChainID     int64  `toml:"chain_id"`
	ChainName   string `toml:"chain_name"`
	RPCURL      string `toml:"rpc_url"`
	ExplorerURL string `toml:"explorer_url"`

	ProjectID      string `toml:"project_id"`
	BundlerURL     string `toml:"bundler_url"`
	PaymasterURL   string `toml:"paymaster_url"`
	EntryPoint     string `toml:"entry_point"`
	KernelFactory  string `toml:"kernel_factory"`
	KernelInitHash string `toml:"kernel_init_hash"`
	AccountIndex   uint64 `toml:"account_index"`

	KeystoreDir      string `toml:"keystore_dir"`
	KeystorePassword string `toml:"keystore_password"`
	// AutoApprove signs owner prompts without operator confirmation. Only
	// meaningful for headless deployments.
	AutoApprove bool `toml:"auto_approve"`

	SessionValidity duration         `toml:"session_validity"`
	Permissions     PermissionConfig `toml:"permissions"`
}

// PermissionConfig is the call policy attached to a delegated session key.
// An empty Calls list is only accepted when AllowUnrestricted is set.
type PermissionConfig struct {
	AllowUnrestricted bool             `toml:"allow_unrestricted"`
	Calls             []CallPermission `toml:"calls"`
}

// CallPermission whitelists one target contract and optional selector.
type CallPermission struct {
	Target   string `toml:"target"`
	Selector string `toml:"selector"`
	MaxValue string `toml:"max_value"`
}

// SessionStoreConfig selects where serialized session blobs live.
type SessionStoreConfig struct {
	Backend    string `toml:"backend"`
	Key        string `toml:"key"`
	FilePath   string `toml:"file_path"`
	SQLitePath string `toml:"sqlite_path"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the position journal archiver.
type ArchiveConfig struct {
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	Prefix        string   `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			BaseURL:   "https://hunch-backend-production.up.railway.app",
			Endpoints: []string{"/api/markets", "/apiu/markets"},
			Timeout:   duration{10 * time.Second},
			PageSize:  20,
			CacheTTL:  duration{30 * time.Second},
		},
		Deck: DeckConfig{
			FetchAheadThreshold: 2,
			StackDepth:          3,
			CountdownInterval:   duration{time.Second},
			StartingBalance:     "1000",
			DefaultStake:        "10",
			XPPerPosition:       5,
			IdleTimeout:         duration{30 * time.Minute},
			MaxActiveUsers:      10000,
		},
		Gesture: GestureConfig{
			DragSlop:         4,
			HorizontalRatio:  0.24,
			VerticalRatio:    0.18,
			FlyAwayOvershoot: 160,
			FlyAwayDuration:  duration{220 * time.Millisecond},
			SpringFriction:   6,
			SpringTension:    90,
			MaxRotationDeg:   10,
		},
		Wallet: WalletConfig{
			Enabled:         true,
			ChainID:         84532,
			ChainName:       "Base Sepolia",
			RPCURL:          "https://sepolia.base.org",
			ExplorerURL:     "https://sepolia.basescan.org",
			ProjectID:       "b3b0afd3-1a82-4428-b36a-de11835515ae",
			BundlerURL:      "https://rpc.zerodev.app/api/v3/b3b0afd3-1a82-4428-b36a-de11835515ae/chain/84532",
			PaymasterURL:    "https://rpc.zerodev.app/api/v3/b3b0afd3-1a82-4428-b36a-de11835515ae/chain/84532",
			EntryPoint:      "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
			KernelFactory:   "0x2577507b78c2008Ff367261CB6285d44ba5eF2E9",
			KeystoreDir:     "data/keystore",
			SessionValidity: duration{30 * 24 * time.Hour},
		},
		SessionStore: SessionStoreConfig{
			Backend:    "sqlite",
			Key:        "hunch.sessionKey.serialized.v1",
			FilePath:   "data/sessions.json",
			SQLitePath: "data/hunch.db",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hunch-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
			Prefix:        "positions",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:8081"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"session_approved", "session_reset", "deck_exhausted", "error"},
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"wallet": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSessionBackends = map[string]bool{
	"memory":   true,
	"file":     true,
	"sqlite":   true,
	"redis":    true,
	"postgres": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, wallet, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if strings.TrimSpace(c.Feed.BaseURL) == "" {
		errs = append(errs, "feed: base_url must not be empty")
	}
	if len(c.Feed.Endpoints) == 0 {
		errs = append(errs, "feed: at least one endpoint is required")
	}
	if c.Feed.Timeout.Duration <= 0 {
		errs = append(errs, "feed: timeout must be > 0")
	}
	if c.Feed.PageSize < 1 {
		errs = append(errs, "feed: page_size must be >= 1")
	}

	// Deck
	if c.Deck.FetchAheadThreshold < 1 {
		errs = append(errs, "deck: fetch_ahead_threshold must be >= 1")
	}
	if c.Deck.StackDepth < 1 {
		errs = append(errs, "deck: stack_depth must be >= 1")
	}
	if c.Deck.CountdownInterval.Duration <= 0 {
		errs = append(errs, "deck: countdown_interval must be > 0")
	}
	if c.Deck.IdleTimeout.Duration <= 0 {
		errs = append(errs, "deck: idle_timeout must be > 0")
	}
	if c.Deck.MaxActiveUsers < 1 {
		errs = append(errs, "deck: max_active_users must be >= 1")
	}

	// Gesture
	if c.Gesture.HorizontalRatio <= 0 || c.Gesture.HorizontalRatio >= 1 {
		errs = append(errs, "gesture: horizontal_ratio must be in (0,1)")
	}
	if c.Gesture.VerticalRatio <= 0 || c.Gesture.VerticalRatio >= 1 {
		errs = append(errs, "gesture: vertical_ratio must be in (0,1)")
	}
	if c.Gesture.DragSlop < 0 {
		errs = append(errs, "gesture: drag_slop must be >= 0")
	}

	// Wallet
	if c.Wallet.Enabled {
		if c.Wallet.ChainID <= 0 {
			errs = append(errs, "wallet: chain_id must be positive")
		}
		if c.Wallet.RPCURL == "" {
			errs = append(errs, "wallet: rpc_url must not be empty")
		}
		if c.Wallet.KeystorePassword == "" {
			errs = append(errs, "wallet: keystore_password is required")
		}
		if c.Wallet.SessionValidity.Duration <= 0 {
			errs = append(errs, "wallet: session_validity must be > 0")
		}
		if len(c.Wallet.Permissions.Calls) == 0 && !c.Wallet.Permissions.AllowUnrestricted {
			errs = append(errs, "wallet: permissions.calls is empty; list call permissions or set permissions.allow_unrestricted = true")
		}
		for i, p := range c.Wallet.Permissions.Calls {
			if p.Target == "" {
				errs = append(errs, fmt.Sprintf("wallet: permissions.calls[%d].target must not be empty", i))
			}
		}
	}

	// Session store
	backend := strings.ToLower(c.SessionStore.Backend)
	if !validSessionBackends[backend] {
		errs = append(errs, fmt.Sprintf("session_store: unknown backend %q (valid: memory, file, sqlite, redis, postgres)", c.SessionStore.Backend))
	}
	if c.SessionStore.Key == "" {
		errs = append(errs, "session_store: key must not be empty")
	}
	if backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "session_store: backend redis requires redis.enabled")
	}
	if backend == "postgres" && !c.Supabase.Enabled {
		errs = append(errs, "session_store: backend postgres requires supabase.enabled")
	}
	if backend == "file" && c.Wallet.KeystorePassword == "" {
		errs = append(errs, "session_store: backend file requires wallet.keystore_password")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Supabase.Enabled {
			errs = append(errs, "s3: archiving positions requires supabase.enabled")
		}
	}

	// Server
	if c.Mode != "wallet" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
