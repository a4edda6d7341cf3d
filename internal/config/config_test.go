package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.KeystorePassword = "hunter2"
	cfg.Wallet.Permissions.AllowUnrestricted = true
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 20, cfg.Feed.PageSize)
	assert.Equal(t, 10*time.Second, cfg.Feed.Timeout.Duration)
	assert.Equal(t, 2, cfg.Deck.FetchAheadThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Deck.IdleTimeout.Duration)
	assert.Equal(t, 10000, cfg.Deck.MaxActiveUsers)
	assert.Equal(t, 0.24, cfg.Gesture.HorizontalRatio)
	assert.Equal(t, 0.18, cfg.Gesture.VerticalRatio)
	assert.Equal(t, int64(84532), cfg.Wallet.ChainID)
	assert.Equal(t, 30*24*time.Hour, cfg.Wallet.SessionValidity.Duration)
	assert.Equal(t, "hunch.sessionKey.serialized.v1", cfg.SessionStore.Key)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.Validate())
	})

	t.Run("permissions are a required input", func(t *testing.T) {
		cfg := validConfig()
		cfg.Wallet.Permissions.AllowUnrestricted = false
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permissions.calls is empty")

		cfg.Wallet.Permissions.Calls = []CallPermission{{Target: "0xabc"}}
		require.NoError(t, cfg.Validate())
	})

	t.Run("wallet disabled skips wallet checks", func(t *testing.T) {
		cfg := Defaults()
		cfg.Wallet.Enabled = false
		cfg.SessionStore.Backend = "memory"
		require.NoError(t, cfg.Validate())
	})

	t.Run("redis backend requires redis", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore.Backend = "redis"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires redis.enabled")
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "trade"
		cfg.Feed.PageSize = 0
		cfg.Gesture.HorizontalRatio = 1.5
		cfg.Deck.MaxActiveUsers = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown mode "trade"`)
		assert.Contains(t, err.Error(), "page_size")
		assert.Contains(t, err.Error(), "horizontal_ratio")
		assert.Contains(t, err.Error(), "max_active_users")
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hunch.toml")
	body := `
mode = "wallet"

[feed]
page_size = 10
timeout = "3s"

[wallet.permissions]
allow_unrestricted = true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("HUNCH_WALLET_KEYSTORE_PASSWORD", "from-env")
	t.Setenv("HUNCH_FEED_ENDPOINTS", "/v2/markets, /api/markets")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wallet", cfg.Mode)
	assert.Equal(t, 10, cfg.Feed.PageSize)
	assert.Equal(t, 3*time.Second, cfg.Feed.Timeout.Duration)
	assert.Equal(t, "from-env", cfg.Wallet.KeystorePassword)
	assert.Equal(t, []string{"/v2/markets", "/api/markets"}, cfg.Feed.Endpoints)
	assert.True(t, cfg.Wallet.Permissions.AllowUnrestricted)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Feed.BaseURL, cfg.Feed.BaseURL)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = "secret"
	cfg.Redis.Password = "pw"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.KeystorePassword)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "", out.S3.AccessKey)

	out.Feed.Endpoints[0] = "/mutated"
	assert.Equal(t, "/api/markets", cfg.Feed.Endpoints[0])
	assert.Equal(t, "secret", cfg.Server.APIKey)
}
