package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market records. The in-memory ledger is the
// authority; the store is the durable mirror used for restarts, list
// queries, and archival.
type MarketStore interface {
	Insert(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id uint64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListUnresolvedBefore(ctx context.Context, deadline time.Time) ([]Market, error)
	ListResolvedBefore(ctx context.Context, resolvedAt time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists per-account stakes. ListAll exists for the restore
// path at startup.
type PositionStore interface {
	Upsert(ctx context.Context, p Position) error
	Get(ctx context.Context, marketID uint64, account common.Address, side Side) (Position, error)
	ListByAccount(ctx context.Context, account common.Address) ([]Position, error)
	ListByMarket(ctx context.Context, marketID uint64) ([]Position, error)
	ListAll(ctx context.Context) ([]Position, error)
}

// EventStore persists the append-only ledger event log.
type EventStore interface {
	Append(ctx context.Context, e Event) error
	ListByMarket(ctx context.Context, marketID uint64) ([]Event, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
