// Package sqlite is the device-local store: session blobs and the position
// journal in a single pure-Go SQLite file through gorm.
package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sessionRow is one serialized session blob keyed by storage key.
type sessionRow struct {
	Key       string `gorm:"primaryKey"`
	Blob      string `gorm:"not null"`
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "session_vault" }

// positionRow mirrors domain.Position. Stake is kept as decimal text.
type positionRow struct {
	ID              string    `gorm:"primaryKey"`
	UserID          string    `gorm:"index:idx_positions_user_created,priority:1;not null"`
	MarketID        string    `gorm:"not null"`
	Question        string    `gorm:"not null;default:''"`
	Side            string    `gorm:"not null"`
	Stake           string    `gorm:"not null"`
	EntryYesPercent int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"index:idx_positions_user_created,priority:2;index"`
}

func (positionRow) TableName() string { return "positions" }

// DB owns the gorm handle shared by the vault and the position store.
type DB struct {
	db *gorm.DB
}

// Open creates the parent directory, opens path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir for %s: %w", path, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite: pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&sessionRow{}, &positionRow{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
