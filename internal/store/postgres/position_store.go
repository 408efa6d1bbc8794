package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Accounts
// are stored in their checksummed hex form.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given
// connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `market_id, account, side, stake::text, claimed, updated_at`

// Upsert inserts or replaces the position for (market, account, side).
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, account, side, stake, claimed, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		ON CONFLICT (market_id, account, side) DO UPDATE SET
			stake      = EXCLUDED.stake,
			claimed    = EXCLUDED.claimed,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		int64(p.MarketID), p.Account.Hex(), string(p.Side),
		amountText(p.Stake), p.Claimed, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %d/%s/%s: %w", p.MarketID, p.Account.Hex(), p.Side, err)
	}
	return nil
}

// Get retrieves a single position.
func (s *PositionStore) Get(ctx context.Context, marketID uint64, account common.Address, side domain.Side) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE market_id = $1 AND account = $2 AND side = $3`,
		int64(marketID), account.Hex(), string(side))
	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position: %w", err)
	}
	return p, nil
}

// ListByAccount returns all positions held by the account, ordered by
// market id with YES before NO.
func (s *PositionStore) ListByAccount(ctx context.Context, account common.Address) ([]domain.Position, error) {
	return s.queryPositions(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE account = $1 ORDER BY market_id, side DESC`,
		account.Hex())
}

// ListAll returns every position. Used once at startup to rebuild the
// in-memory ledger.
func (s *PositionStore) ListAll(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx,
		`SELECT `+positionCols+` FROM positions ORDER BY market_id, account, side DESC`)
}

// ListByMarket returns all positions on the market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Position, error) {
	return s.queryPositions(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE market_id = $1 ORDER BY account, side DESC`,
		int64(marketID))
}

func (s *PositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: position rows: %w", err)
	}
	return positions, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var marketID int64
	var account, side, stake string
	err := row.Scan(&marketID, &account, &side, &stake, &p.Claimed, &p.UpdatedAt)
	if err != nil {
		return domain.Position{}, err
	}
	p.MarketID = uint64(marketID)
	p.Account = common.HexToAddress(account)
	p.Side = domain.Side(side)
	if p.Stake, err = parseAmount(stake); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}
