package ledger

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// Clock supplies the engine's notion of now. Injected so temporal gating
// can be tested deterministically.
type Clock func() time.Time

// NettingPolicy controls what happens when an account that already holds a
// stake on one side of a market wagers on the opposite side.
type NettingPolicy string

const (
	// NettingIndependent accepts the wager and tracks two positions, one
	// per side. This is the reference behavior.
	NettingIndependent NettingPolicy = "independent"
	// NettingReject refuses opposite-side wagers outright.
	NettingReject NettingPolicy = "reject"
)

// Valid reports whether p is a recognized policy.
func (p NettingPolicy) Valid() bool {
	return p == NettingIndependent || p == NettingReject
}

// Config holds the engine's policy knobs.
type Config struct {
	Authorizer Authorizer
	Netting    NettingPolicy
	Clock      Clock
}

type positionKey struct {
	account common.Address
	side    domain.Side
}

// marketState is one independently lockable market aggregate. Same-market
// operations serialize on mu; different markets never contend.
type marketState struct {
	mu        sync.Mutex
	market    domain.Market
	positions map[positionKey]*domain.Position
}

// Engine owns every Market and Position record for its lifetime. All four
// mutating operations check every precondition before touching state, so a
// rejected operation is always a no-op. Each successful mutation yields
// exactly one domain.Event, built under the market lock so event order
// matches mutation order.
type Engine struct {
	auth    Authorizer
	netting NettingPolicy
	now     Clock
	logger  *slog.Logger

	mu      sync.RWMutex // guards lastID and the markets map
	lastID  uint64
	markets map[uint64]*marketState
}

// New creates an Engine. The clock defaults to time.Now and the netting
// policy to NettingIndependent when unset.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Netting == "" {
		cfg.Netting = NettingIndependent
	}
	return &Engine{
		auth:    cfg.Authorizer,
		netting: cfg.Netting,
		now:     cfg.Clock,
		logger:  logger.With(slog.String("component", "ledger")),
		markets: make(map[uint64]*marketState),
	}
}

// CreateMarket opens a new market with empty pools and the next sequential
// id. The deadline must be strictly in the future and the threshold
// strictly positive; a market with a zero bar is degenerate.
func (e *Engine) CreateMarket(caller common.Address, question, trackID string, threshold int64, deadline time.Time) (uint64, domain.Event, error) {
	if e.auth != nil && !e.auth.CanCreate(caller) {
		return 0, domain.Event{}, domain.ErrNotCreator
	}
	if threshold <= 0 {
		return 0, domain.Event{}, domain.ErrInvalidThreshold
	}
	now := e.now()
	if !deadline.After(now) {
		return 0, domain.Event{}, domain.ErrPastDeadline
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.lastID + 1
	ev, err := domain.NewEvent(domain.EventMarketCreated, id, now, domain.MarketCreatedPayload{
		MarketID:  id,
		Question:  question,
		TrackID:   trackID,
		Threshold: threshold,
		Deadline:  deadline,
	})
	if err != nil {
		return 0, domain.Event{}, err
	}

	e.lastID = id
	e.markets[id] = &marketState{
		market: domain.Market{
			ID:        id,
			Question:  question,
			TrackID:   trackID,
			Threshold: threshold,
			Deadline:  deadline,
			YesPool:   new(big.Int),
			NoPool:    new(big.Int),
			CreatedAt: now,
		},
		positions: make(map[positionKey]*domain.Position),
	}

	e.logger.Info("market created",
		slog.Uint64("market_id", id),
		slog.Int64("threshold", threshold),
		slog.Time("deadline", deadline),
	)
	return id, ev, nil
}

// PlaceWager adds amount to the chosen pool and to the caller's same-side
// position, creating the position on first wager. Wagering is open while
// now is strictly before the deadline and the market is unresolved.
func (e *Engine) PlaceWager(caller common.Address, marketID uint64, side domain.Side, amount *big.Int) (domain.Event, error) {
	if !side.Valid() {
		return domain.Event{}, fmt.Errorf("ledger: unknown side %q", side)
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.Event{}, domain.ErrInvalidAmount
	}

	ms, ok := e.lookup(marketID)
	if !ok {
		return domain.Event{}, domain.ErrMarketNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := e.now()
	// Exclusive boundary: a wager at now == deadline is already closed.
	if ms.market.Resolved || !now.Before(ms.market.Deadline) {
		return domain.Event{}, domain.ErrTradingClosed
	}

	if e.netting == NettingReject {
		if opp, ok := ms.positions[positionKey{caller, opposite(side)}]; ok && opp.Stake.Sign() > 0 {
			return domain.Event{}, domain.ErrOppositeSide
		}
	}

	ev, err := domain.NewEvent(domain.EventWagerPlaced, marketID, now, domain.WagerPlacedPayload{
		MarketID: marketID,
		Account:  caller,
		Yes:      side == domain.SideYes,
		Amount:   new(big.Int).Set(amount),
	})
	if err != nil {
		return domain.Event{}, err
	}

	ms.market.Pool(side).Add(ms.market.Pool(side), amount)

	key := positionKey{caller, side}
	pos, ok := ms.positions[key]
	if !ok {
		pos = &domain.Position{
			MarketID: marketID,
			Account:  caller,
			Side:     side,
			Stake:    new(big.Int),
		}
		ms.positions[key] = pos
	}
	pos.Stake.Add(pos.Stake, amount)
	pos.UpdatedAt = now

	return ev, nil
}

// Resolve permanently fixes the outcome: outcomeYes = observed >= threshold.
// Only the oracle may resolve, only at or after the deadline, and only
// once. The pools are frozen from this point on.
func (e *Engine) Resolve(caller common.Address, marketID uint64, observed int64) (domain.Event, error) {
	if observed < 0 {
		return domain.Event{}, domain.ErrInvalidObserved
	}

	ms, ok := e.lookup(marketID)
	if !ok {
		return domain.Event{}, domain.ErrMarketNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Access control is checked first: a non-oracle caller is rejected
	// regardless of deadline or resolution state.
	if e.auth != nil && !e.auth.CanResolve(caller) {
		return domain.Event{}, domain.ErrNotOracle
	}
	if ms.market.Resolved {
		return domain.Event{}, domain.ErrAlreadyResolved
	}
	now := e.now()
	// Inclusive boundary: resolution at exactly the deadline is legal.
	if now.Before(ms.market.Deadline) {
		return domain.Event{}, domain.ErrBeforeDeadline
	}

	outcomeYes := observed >= ms.market.Threshold
	ev, err := domain.NewEvent(domain.EventMarketResolved, marketID, now, domain.MarketResolvedPayload{
		MarketID:   marketID,
		OutcomeYes: outcomeYes,
		YesPool:    new(big.Int).Set(ms.market.YesPool),
		NoPool:     new(big.Int).Set(ms.market.NoPool),
	})
	if err != nil {
		return domain.Event{}, err
	}

	ms.market.Resolved = true
	ms.market.OutcomeYes = outcomeYes
	ms.market.ResolvedAt = &now

	e.logger.Info("market resolved",
		slog.Uint64("market_id", marketID),
		slog.Int64("observed", observed),
		slog.Bool("outcome_yes", outcomeYes),
	)
	return ev, nil
}

// Redeem pays the caller their proportional share of the total pot:
// payout = stake * (yesPool + noPool) / winningPool, floor division.
// Truncation dust stays in the ledger. The claimed flag is the sole guard
// against double payout and flips exactly once.
func (e *Engine) Redeem(caller common.Address, marketID uint64) (*big.Int, domain.Event, error) {
	ms, ok := e.lookup(marketID)
	if !ok {
		return nil, domain.Event{}, domain.ErrMarketNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// An unresolved market has no winning side yet, so no position can be
	// an eligible winner.
	if !ms.market.Resolved {
		return nil, domain.Event{}, domain.ErrNoWinningShares
	}

	winSide := ms.market.WinningSide()
	pos, ok := ms.positions[positionKey{caller, winSide}]
	if !ok || pos.Claimed || pos.Stake.Sign() <= 0 {
		return nil, domain.Event{}, domain.ErrNoWinningShares
	}

	winningPool := ms.market.Pool(winSide)
	// Unreachable when a winning position exists, but guard the division.
	if winningPool.Sign() == 0 {
		return nil, domain.Event{}, domain.ErrNoWinningShares
	}

	payout := new(big.Int).Mul(pos.Stake, ms.market.TotalPot())
	payout.Quo(payout, winningPool)

	now := e.now()
	ev, err := domain.NewEvent(domain.EventRedeemed, marketID, now, domain.RedeemedPayload{
		MarketID: marketID,
		Account:  caller,
		Payout:   new(big.Int).Set(payout),
	})
	if err != nil {
		return nil, domain.Event{}, err
	}

	pos.Claimed = true
	pos.UpdatedAt = now

	return payout, ev, nil
}

// GetMarket returns a snapshot of the market record.
func (e *Engine) GetMarket(marketID uint64) (domain.Market, error) {
	ms, ok := e.lookup(marketID)
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.market.Snapshot(), nil
}

// Markets returns snapshots of all markets ordered by id.
func (e *Engine) Markets() []domain.Market {
	e.mu.RLock()
	states := make([]*marketState, 0, len(e.markets))
	for _, ms := range e.markets {
		states = append(states, ms)
	}
	e.mu.RUnlock()

	out := make([]domain.Market, 0, len(states))
	for _, ms := range states {
		ms.mu.Lock()
		out = append(out, ms.market.Snapshot())
		ms.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnresolvedPastDeadline returns markets that are legal to resolve at the
// given instant, ordered by id. Used by the oracle resolver loop.
func (e *Engine) UnresolvedPastDeadline(at time.Time) []domain.Market {
	var out []domain.Market
	for _, m := range e.Markets() {
		if !m.Resolved && !at.Before(m.Deadline) {
			out = append(out, m)
		}
	}
	return out
}

// Positions returns all non-empty positions held by the account, ordered
// by market id with YES before NO.
func (e *Engine) Positions(account common.Address) []domain.Position {
	e.mu.RLock()
	states := make([]*marketState, 0, len(e.markets))
	for _, ms := range e.markets {
		states = append(states, ms)
	}
	e.mu.RUnlock()

	var out []domain.Position
	for _, ms := range states {
		ms.mu.Lock()
		for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
			if pos, ok := ms.positions[positionKey{account, side}]; ok && pos.Stake.Sign() > 0 {
				out = append(out, pos.Snapshot())
			}
		}
		ms.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Side == domain.SideYes
	})
	return out
}

// Position returns a snapshot of a single position, claimed or not.
func (e *Engine) Position(marketID uint64, account common.Address, side domain.Side) (domain.Position, error) {
	ms, ok := e.lookup(marketID)
	if !ok {
		return domain.Position{}, domain.ErrMarketNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	pos, ok := ms.positions[positionKey{account, side}]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos.Snapshot(), nil
}

// Restore rebuilds engine state from persisted records. It must be called
// before the engine starts serving operations.
func (e *Engine) Restore(markets []domain.Market, positions []domain.Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, m := range markets {
		if m.ID == 0 {
			return fmt.Errorf("ledger: restore market with zero id")
		}
		if _, dup := e.markets[m.ID]; dup {
			return fmt.Errorf("ledger: restore duplicate market %d", m.ID)
		}
		snap := m.Snapshot()
		if snap.YesPool == nil {
			snap.YesPool = new(big.Int)
		}
		if snap.NoPool == nil {
			snap.NoPool = new(big.Int)
		}
		e.markets[m.ID] = &marketState{
			market:    snap,
			positions: make(map[positionKey]*domain.Position),
		}
		if m.ID > e.lastID {
			e.lastID = m.ID
		}
	}

	for _, p := range positions {
		ms, ok := e.markets[p.MarketID]
		if !ok {
			return fmt.Errorf("ledger: restore position for unknown market %d", p.MarketID)
		}
		snap := p.Snapshot()
		ms.positions[positionKey{p.Account, p.Side}] = &snap
	}

	e.logger.Info("ledger restored",
		slog.Int("markets", len(markets)),
		slog.Int("positions", len(positions)),
	)
	return nil
}

func (e *Engine) lookup(marketID uint64) (*marketState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ms, ok := e.markets[marketID]
	return ms, ok
}

func opposite(s domain.Side) domain.Side {
	if s == domain.SideYes {
		return domain.SideNo
	}
	return domain.SideYes
}
