// Package service composes the in-memory ledger with persistence, caching,
// and event distribution. The engine is the authority for every operation;
// the stores are the durable mirror it is rebuilt from on restart.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
	"github.com/vybelabs/vybeledger/internal/ledger"
)

// EventStream is the Redis stream every ledger event is appended to, in
// emission order, for indexer replay.
const EventStream = "ledger:events"

// Notifier delivers operator notifications. Satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// LedgerService wires the ledger engine to the stores, the market cache,
// the signal bus, and the notifier. Cache, bus, and notifier are optional;
// a nil value disables that concern.
type LedgerService struct {
	engine    *ledger.Engine
	markets   domain.MarketStore
	positions domain.PositionStore
	events    domain.EventStore
	cache     domain.MarketCache
	bus       domain.SignalBus
	notifier  Notifier
	logger    *slog.Logger
}

// Deps bundles the collaborators for NewLedgerService.
type Deps struct {
	Engine    *ledger.Engine
	Markets   domain.MarketStore
	Positions domain.PositionStore
	Events    domain.EventStore
	Cache     domain.MarketCache
	Bus       domain.SignalBus
	Notifier  Notifier
	Logger    *slog.Logger
}

// NewLedgerService creates a LedgerService from its dependencies.
func NewLedgerService(d Deps) *LedgerService {
	return &LedgerService{
		engine:    d.Engine,
		markets:   d.Markets,
		positions: d.Positions,
		events:    d.Events,
		cache:     d.Cache,
		bus:       d.Bus,
		notifier:  d.Notifier,
		logger:    d.Logger.With(slog.String("component", "service")),
	}
}

// Restore loads every market and position from the stores into the engine.
// It must run before the service accepts operations.
func (s *LedgerService) Restore(ctx context.Context) error {
	markets, err := s.markets.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("service: restore markets: %w", err)
	}
	positions, err := s.positions.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("service: restore positions: %w", err)
	}
	return s.engine.Restore(markets, positions)
}

// CreateMarket opens a new market and returns its full record.
func (s *LedgerService) CreateMarket(ctx context.Context, caller common.Address, question, trackID string, threshold int64, deadline time.Time) (domain.Market, error) {
	id, ev, err := s.engine.CreateMarket(caller, question, trackID, threshold, deadline)
	if err != nil {
		return domain.Market{}, err
	}

	m, err := s.engine.GetMarket(id)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Insert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("service: persist market %d: %w", id, err)
	}
	s.finish(ctx, ev, m)

	s.sendNotification(ctx, ev, "Market created",
		fmt.Sprintf("Market #%d: %s (threshold %d, deadline %s)", id, question, threshold, deadline.Format(time.RFC3339)))
	return m, nil
}

// PlaceWager stakes amount on one side of a market and returns the updated
// market record.
func (s *LedgerService) PlaceWager(ctx context.Context, caller common.Address, marketID uint64, side domain.Side, amount *big.Int) (domain.Market, error) {
	ev, err := s.engine.PlaceWager(caller, marketID, side, amount)
	if err != nil {
		return domain.Market{}, err
	}

	m, err := s.engine.GetMarket(marketID)
	if err != nil {
		return domain.Market{}, err
	}
	pos, err := s.engine.Position(marketID, caller, side)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("service: persist market %d: %w", marketID, err)
	}
	if err := s.positions.Upsert(ctx, pos); err != nil {
		return domain.Market{}, fmt.Errorf("service: persist position %d/%s: %w", marketID, caller.Hex(), err)
	}
	s.finish(ctx, ev, m)
	return m, nil
}

// Resolve fixes the market's outcome as the given caller and returns the
// resolution event.
func (s *LedgerService) Resolve(ctx context.Context, caller common.Address, marketID uint64, observed int64) (domain.Event, error) {
	ev, err := s.engine.Resolve(caller, marketID, observed)
	if err != nil {
		return domain.Event{}, err
	}

	m, err := s.engine.GetMarket(marketID)
	if err != nil {
		return domain.Event{}, err
	}

	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Event{}, fmt.Errorf("service: persist market %d: %w", marketID, err)
	}
	s.finish(ctx, ev, m)

	outcome := "NO"
	if m.OutcomeYes {
		outcome = "YES"
	}
	s.sendNotification(ctx, ev, "Market resolved",
		fmt.Sprintf("Market #%d resolved %s (observed %d vs threshold %d)", marketID, outcome, observed, m.Threshold))
	return ev, nil
}

// Redeem pays out the caller's winning position and returns the payout.
func (s *LedgerService) Redeem(ctx context.Context, caller common.Address, marketID uint64) (*big.Int, error) {
	payout, ev, err := s.engine.Redeem(caller, marketID)
	if err != nil {
		return nil, err
	}

	m, err := s.engine.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	pos, err := s.engine.Position(marketID, caller, m.WinningSide())
	if err != nil {
		return nil, err
	}

	if err := s.positions.Upsert(ctx, pos); err != nil {
		return nil, fmt.Errorf("service: persist position %d/%s: %w", marketID, caller.Hex(), err)
	}
	s.finish(ctx, ev, m)
	return payout, nil
}

// GetMarket returns a market, consulting the cache before the engine.
func (s *LedgerService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("cache read failed", "market_id", id, "error", err)
		}
	}

	m, err := s.engine.GetMarket(id)
	if err != nil {
		return domain.Market{}, err
	}
	s.cacheSet(ctx, m)
	return m, nil
}

// ListMarkets returns every market ordered by id.
func (s *LedgerService) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return s.engine.Markets(), nil
}

// DueMarkets returns markets legal to resolve at the given instant.
func (s *LedgerService) DueMarkets(ctx context.Context, at time.Time) ([]domain.Market, error) {
	return s.engine.UnresolvedPastDeadline(at), nil
}

// Positions returns the account's open positions across all markets.
func (s *LedgerService) Positions(ctx context.Context, account common.Address) ([]domain.Position, error) {
	return s.engine.Positions(account), nil
}

// MarketEvents returns the persisted event history for a market.
func (s *LedgerService) MarketEvents(ctx context.Context, marketID uint64) ([]domain.Event, error) {
	if _, err := s.engine.GetMarket(marketID); err != nil {
		return nil, err
	}
	return s.events.ListByMarket(ctx, marketID)
}

// finish runs the post-commit tail shared by every mutation: append the
// event to the durable log, refresh the cache, and distribute the event.
// Distribution is best-effort; the event log append is not.
func (s *LedgerService) finish(ctx context.Context, ev domain.Event, m domain.Market) {
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.Error("event append failed", "event_id", ev.ID, "type", ev.Type, "error", err)
	}
	s.cacheSet(ctx, m)
	s.publish(ctx, ev)
}

func (s *LedgerService) cacheSet(ctx context.Context, m domain.Market) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.Warn("cache write failed", "market_id", m.ID, "error", err)
	}
}

// publish fans the event out on its pub/sub channel and appends it to the
// durable stream the indexer replays from.
func (s *LedgerService) publish(ctx context.Context, ev domain.Event) {
	if s.bus == nil {
		return
	}
	data, err := ev.Marshal()
	if err != nil {
		s.logger.Error("event marshal failed", "event_id", ev.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, ev.Channel(), data); err != nil {
		s.logger.Warn("event publish failed", "channel", ev.Channel(), "error", err)
	}
	if err := s.bus.StreamAppend(ctx, EventStream, data); err != nil {
		s.logger.Warn("event stream append failed", "stream", EventStream, "error", err)
	}
}

func (s *LedgerService) sendNotification(ctx context.Context, ev domain.Event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
		s.logger.Warn("notification failed", "event", ev.Type, "error", err)
	}
}
