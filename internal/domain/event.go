package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType identifies which ledger mutation an event describes.
type EventType string

const (
	EventMarketCreated  EventType = "market_created"
	EventWagerPlaced    EventType = "wager_placed"
	EventMarketResolved EventType = "market_resolved"
	EventRedeemed       EventType = "redeemed"
)

// Event is the envelope appended to the ledger's output channel. Payloads
// are JSON so the external indexer and the frontend can consume them
// without depending on the ledger's internal representation.
type Event struct {
	ID        string          `json:"id"` // UUID, assigned at emission
	Type      EventType       `json:"type"`
	MarketID  uint64          `json:"market_id"`
	EmittedAt time.Time       `json:"emitted_at"`
	Payload   json.RawMessage `json:"payload"`
}

// MarketCreatedPayload mirrors the original MarketCreated notification.
type MarketCreatedPayload struct {
	MarketID  uint64    `json:"market_id"`
	Question  string    `json:"question"`
	TrackID   string    `json:"track_id"`
	Threshold int64     `json:"threshold"`
	Deadline  time.Time `json:"deadline"`
}

// WagerPlacedPayload mirrors the original BetPlaced notification.
type WagerPlacedPayload struct {
	MarketID uint64         `json:"market_id"`
	Account  common.Address `json:"account"`
	Yes      bool           `json:"yes"`
	Amount   *big.Int       `json:"amount"`
}

// MarketResolvedPayload carries the final pool snapshot fixed at resolution.
type MarketResolvedPayload struct {
	MarketID   uint64   `json:"market_id"`
	OutcomeYes bool     `json:"outcome_yes"`
	YesPool    *big.Int `json:"yes_pool"`
	NoPool     *big.Int `json:"no_pool"`
}

// RedeemedPayload carries a single winning payout.
type RedeemedPayload struct {
	MarketID uint64         `json:"market_id"`
	Account  common.Address `json:"account"`
	Payout   *big.Int       `json:"payout"`
}

// NewEvent builds an Event with a fresh UUID and the payload marshaled to
// JSON. Construction happens before the corresponding state mutation is
// committed, so a marshal failure leaves the ledger untouched.
func NewEvent(typ EventType, marketID uint64, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("domain: marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		MarketID:  marketID,
		EmittedAt: at,
		Payload:   data,
	}, nil
}

// Marshal renders the full envelope as JSON for the wire.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal event %s: %w", e.ID, err)
	}
	return data, nil
}

// Channel returns the pub/sub channel this event type is published on.
func (e Event) Channel() string {
	switch e.Type {
	case EventMarketCreated:
		return "ch:market"
	case EventWagerPlaced:
		return "ch:wager"
	case EventMarketResolved:
		return "ch:resolution"
	case EventRedeemed:
		return "ch:redemption"
	default:
		return "ch:event"
	}
}
