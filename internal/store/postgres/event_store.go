package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The event log
// is append-only; rows are never updated or deleted.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append persists a single ledger event.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	const query = `
		INSERT INTO ledger_events (id, type, market_id, emitted_at, payload)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, string(e.Type), int64(e.MarketID), e.EmittedAt, []byte(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.ID, err)
	}
	return nil
}

// ListByMarket returns all events for a market in emission order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Event, error) {
	const query = `
		SELECT id, type, market_id, emitted_at, payload
		FROM ledger_events WHERE market_id = $1 ORDER BY emitted_at, id`

	rows, err := s.pool.Query(ctx, query, int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var id int64
		var typ string
		var payload []byte
		if err := rows.Scan(&e.ID, &typ, &id, &e.EmittedAt, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		e.MarketID = uint64(id)
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: event rows: %w", err)
	}
	return events, nil
}
