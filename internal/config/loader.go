package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HUNCH_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus
// environment are used. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HUNCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.BaseURL, "HUNCH_FEED_BASE_URL")
	setStringSlice(&cfg.Feed.Endpoints, "HUNCH_FEED_ENDPOINTS")
	setDuration(&cfg.Feed.Timeout, "HUNCH_FEED_TIMEOUT")
	setInt(&cfg.Feed.PageSize, "HUNCH_FEED_PAGE_SIZE")
	setDuration(&cfg.Feed.CacheTTL, "HUNCH_FEED_CACHE_TTL")

	// ── Deck ──
	setInt(&cfg.Deck.FetchAheadThreshold, "HUNCH_DECK_FETCH_AHEAD_THRESHOLD")
	setInt(&cfg.Deck.StackDepth, "HUNCH_DECK_STACK_DEPTH")
	setStr(&cfg.Deck.StartingBalance, "HUNCH_DECK_STARTING_BALANCE")
	setDuration(&cfg.Deck.IdleTimeout, "HUNCH_DECK_IDLE_TIMEOUT")
	setInt(&cfg.Deck.MaxActiveUsers, "HUNCH_DECK_MAX_ACTIVE_USERS")

	// ── Wallet ──
	setBool(&cfg.Wallet.Enabled, "HUNCH_WALLET_ENABLED")
	setInt64(&cfg.Wallet.ChainID, "HUNCH_WALLET_CHAIN_ID")
	setStr(&cfg.Wallet.RPCURL, "HUNCH_WALLET_RPC_URL")
	setStr(&cfg.Wallet.ProjectID, "HUNCH_WALLET_PROJECT_ID")
	setStr(&cfg.Wallet.BundlerURL, "HUNCH_WALLET_BUNDLER_URL")
	setStr(&cfg.Wallet.PaymasterURL, "HUNCH_WALLET_PAYMASTER_URL")
	setStr(&cfg.Wallet.KeystoreDir, "HUNCH_WALLET_KEYSTORE_DIR")
	setStr(&cfg.Wallet.KeystorePassword, "HUNCH_WALLET_KEYSTORE_PASSWORD")
	setBool(&cfg.Wallet.AutoApprove, "HUNCH_WALLET_AUTO_APPROVE")
	setDuration(&cfg.Wallet.SessionValidity, "HUNCH_WALLET_SESSION_VALIDITY")
	setBool(&cfg.Wallet.Permissions.AllowUnrestricted, "HUNCH_WALLET_PERMISSIONS_ALLOW_UNRESTRICTED")

	// ── Session store ──
	setStr(&cfg.SessionStore.Backend, "HUNCH_SESSION_STORE_BACKEND")
	setStr(&cfg.SessionStore.FilePath, "HUNCH_SESSION_STORE_FILE_PATH")
	setStr(&cfg.SessionStore.SQLitePath, "HUNCH_SESSION_STORE_SQLITE_PATH")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "HUNCH_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "HUNCH_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "HUNCH_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "HUNCH_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "HUNCH_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "HUNCH_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "HUNCH_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "HUNCH_SUPABASE_SSL_MODE")
	setBool(&cfg.Supabase.RunMigrations, "HUNCH_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HUNCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HUNCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HUNCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HUNCH_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "HUNCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HUNCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HUNCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HUNCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "HUNCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HUNCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HUNCH_S3_SECRET_KEY")

	// ── Server ──
	setInt(&cfg.Server.Port, "HUNCH_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HUNCH_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HUNCH_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "HUNCH_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HUNCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HUNCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HUNCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HUNCH_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "HUNCH_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "HUNCH_MODE")
	setStr(&cfg.LogLevel, "HUNCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
