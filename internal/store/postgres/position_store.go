package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Stakes travel as text so NUMERIC precision survives the round trip into
// decimal.Decimal.
const positionSelectCols = `id, user_id, market_id, question, side,
	stake::text, entry_yes_percent, created_at`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var (
			p     domain.Position
			side  string
			stake string
		)
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.MarketID, &p.Question, &side,
			&stake, &p.EntryYesPercent, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(stake)
		if err != nil {
			return nil, fmt.Errorf("stake %q of %s: %w", stake, p.ID, err)
		}
		p.Side = domain.Side(side)
		p.Stake = d
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position. A duplicate id yields domain.ErrAlreadyExists.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, user_id, market_id, question, side,
			stake, entry_yes_percent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.MarketID, p.Question, string(p.Side),
		p.Stake.String(), p.EntryYesPercent, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// ListByUser returns a user's positions, newest first.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	q := newListQuery(`SELECT `+positionSelectCols+` FROM positions WHERE user_id = $1`, userID)
	q.window("created_at", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", userID, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s: %w", userID, err)
	}
	return positions, nil
}

// ListBefore returns up to limit positions created before the cutoff, oldest
// first, for archiving.
func (s *PositionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan archived positions: %w", err)
	}
	return positions, nil
}

// DeleteBefore removes positions created before the cutoff.
func (s *PositionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete positions before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
