package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, track_id, threshold, deadline,
	resolved, outcome_yes, yes_pool::text, no_pool::text, created_at, resolved_at`

// Insert persists a newly created market.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, track_id, threshold, deadline,
			resolved, outcome_yes, yes_pool, no_pool, created_at, resolved_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8::numeric, $9::numeric, $10, $11, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		int64(m.ID), m.Question, m.TrackID, m.Threshold, m.Deadline,
		m.Resolved, m.OutcomeYes, amountText(m.YesPool), amountText(m.NoPool),
		m.CreatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %d: %w", m.ID, err)
	}
	return nil
}

// Update overwrites the mutable columns of a market (pools and resolution
// state).
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			resolved    = $2,
			outcome_yes = $3,
			yes_pool    = $4::numeric,
			no_pool     = $5::numeric,
			resolved_at = $6,
			updated_at  = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(m.ID), m.Resolved, m.OutcomeYes,
		amountText(m.YesPool), amountText(m.NoPool), m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, int64(id))
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by id with pagination and optional
// creation-time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryMarkets(ctx, query, args...)
}

// ListUnresolvedBefore returns unresolved markets whose deadline is at or
// before the given instant, i.e. markets that are legal to resolve.
func (s *MarketStore) ListUnresolvedBefore(ctx context.Context, deadline time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE NOT resolved AND deadline <= $1 ORDER BY id`
	return s.queryMarkets(ctx, query, deadline)
}

// ListResolvedBefore returns markets resolved strictly before the given
// cutoff, used by the settlement archiver.
func (s *MarketStore) ListResolvedBefore(ctx context.Context, resolvedAt time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		WHERE resolved AND resolved_at < $1 ORDER BY id`
	return s.queryMarkets(ctx, query, resolvedAt)
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

func (s *MarketStore) queryMarkets(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var id int64
	var yesPool, noPool string
	err := row.Scan(
		&id, &m.Question, &m.TrackID, &m.Threshold, &m.Deadline,
		&m.Resolved, &m.OutcomeYes, &yesPool, &noPool,
		&m.CreatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.ID = uint64(id)
	if m.YesPool, err = parseAmount(yesPool); err != nil {
		return domain.Market{}, err
	}
	if m.NoPool, err = parseAmount(noPool); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// amountText renders a big integer amount for a ::numeric parameter. A nil
// amount is stored as zero.
func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseAmount parses the text form of a NUMERIC(78,0) column.
func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed amount %q", s)
	}
	return v, nil
}
