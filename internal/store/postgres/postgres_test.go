package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func TestDSN(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"})
		assert.Equal(t, "postgres://x", got)
	})
	t.Run("defaults port and sslmode", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", Database: "hunch", User: "u", Password: "p"})
		assert.Equal(t, "postgres://u:p@db:5432/hunch?sslmode=disable", got)
	})
}

func TestMigrationFilesEmbedded(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])

	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	for _, table := range []string{"positions", "audit_log", "session_vault"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestListQueryWindow(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newListQuery(`SELECT id FROM positions WHERE user_id = $1`, "alice")
	q.window("created_at", domain.ListOpts{Since: &since, Limit: 20, Offset: 40})

	assert.Equal(t,
		"SELECT id FROM positions WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		q.String())
	assert.Equal(t, []any{"alice", since, 20, 40}, q.args)
}

func TestListQueryNoFilters(t *testing.T) {
	q := newListQuery(`SELECT id FROM audit_log WHERE TRUE`)
	q.window("created_at", domain.ListOpts{})
	assert.True(t, strings.HasSuffix(q.String(), "ORDER BY created_at DESC"))
	assert.Empty(t, q.args)
}
