package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// SessionVault implements domain.SessionVault on the session_vault table.
type SessionVault struct {
	d *DB
}

// NewSessionVault returns a vault over d.
func NewSessionVault(d *DB) *SessionVault {
	return &SessionVault{d: d}
}

func (v *SessionVault) Load(ctx context.Context, key string) (string, error) {
	var row sessionRow
	if err := v.d.db.WithContext(ctx).First(&row, "key = ?", key).Error; err != nil {
		if notFound(err) {
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("sqlite: load session %s: %w", key, err)
	}
	return row.Blob, nil
}

func (v *SessionVault) Save(ctx context.Context, key, blob string) error {
	row := sessionRow{Key: key, Blob: blob, UpdatedAt: time.Now().UTC()}
	err := v.d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlite: save session %s: %w", key, err)
	}
	return nil
}

func (v *SessionVault) Delete(ctx context.Context, key string) error {
	if err := v.d.db.WithContext(ctx).Where("key = ?", key).Delete(&sessionRow{}).Error; err != nil {
		return fmt.Errorf("sqlite: delete session %s: %w", key, err)
	}
	return nil
}

var _ domain.SessionVault = (*SessionVault)(nil)
