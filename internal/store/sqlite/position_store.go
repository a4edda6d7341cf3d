package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// PositionStore implements domain.PositionStore on the local database.
type PositionStore struct {
	d *DB
}

// NewPositionStore returns a position store over d.
func NewPositionStore(d *DB) *PositionStore {
	return &PositionStore{d: d}
}

func toRow(p domain.Position) positionRow {
	return positionRow{
		ID:              p.ID,
		UserID:          p.UserID,
		MarketID:        p.MarketID,
		Question:        p.Question,
		Side:            string(p.Side),
		Stake:           p.Stake.String(),
		EntryYesPercent: p.EntryYesPercent,
		CreatedAt:       p.CreatedAt.UTC(),
	}
}

func fromRows(rows []positionRow) ([]domain.Position, error) {
	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		stake, err := decimal.NewFromString(r.Stake)
		if err != nil {
			return nil, fmt.Errorf("sqlite: stake %q of %s: %w", r.Stake, r.ID, err)
		}
		out = append(out, domain.Position{
			ID:              r.ID,
			UserID:          r.UserID,
			MarketID:        r.MarketID,
			Question:        r.Question,
			Side:            domain.Side(r.Side),
			Stake:           stake,
			EntryYesPercent: r.EntryYesPercent,
			CreatedAt:       r.CreatedAt,
		})
	}
	return out, nil
}

func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	row := toRow(p)
	if err := s.d.db.WithContext(ctx).Create(&row).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("sqlite: create position %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: create position %s: %w", p.ID, err)
	}
	return nil
}

func (s *PositionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	tx := s.d.db.WithContext(ctx).Where("user_id = ?", userID)
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", opts.Since.UTC())
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", opts.Until.UTC())
	}
	tx = tx.Order("created_at DESC")
	if opts.Limit > 0 {
		tx = tx.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		tx = tx.Offset(opts.Offset)
	}

	var rows []positionRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list positions for %s: %w", userID, err)
	}
	return fromRows(rows)
}

func (s *PositionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Position, error) {
	var rows []positionRow
	err := s.d.db.WithContext(ctx).
		Where("created_at < ?", before.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions before %s: %w", before.Format(time.RFC3339), err)
	}
	return fromRows(rows)
}

func (s *PositionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.d.db.WithContext(ctx).Where("created_at < ?", before.UTC()).Delete(&positionRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("sqlite: delete positions before %s: %w", before.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
