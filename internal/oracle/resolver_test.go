package oracle

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

var testOracle = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fakeLedger struct {
	due        []domain.Market
	dueErr     error
	resolveErr map[uint64]error

	resolved []uint64
	observed map[uint64]int64
	caller   common.Address
}

func (f *fakeLedger) DueMarkets(ctx context.Context, at time.Time) ([]domain.Market, error) {
	return f.due, f.dueErr
}

func (f *fakeLedger) Resolve(ctx context.Context, caller common.Address, marketID uint64, observed int64) (domain.Event, error) {
	if err := f.resolveErr[marketID]; err != nil {
		return domain.Event{}, err
	}
	f.caller = caller
	f.resolved = append(f.resolved, marketID)
	if f.observed == nil {
		f.observed = make(map[uint64]int64)
	}
	f.observed[marketID] = observed
	return domain.Event{Type: domain.EventMarketResolved, MarketID: marketID}, nil
}

type fakeSource struct {
	popularity map[string]int64
	err        error
}

func (f *fakeSource) TrackPopularity(ctx context.Context, trackID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.popularity[trackID], nil
}

type fakeLocks struct {
	held     map[string]bool
	acquired []string
	released int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

func dueMarket(id uint64, trackID string) domain.Market {
	return domain.Market{
		ID:        id,
		TrackID:   trackID,
		Threshold: 80,
		Deadline:  time.Now().Add(-time.Hour),
		YesPool:   big.NewInt(0),
		NoPool:    big.NewInt(0),
	}
}

func newTestResolver(ledger *fakeLedger, source *fakeSource, locks *fakeLocks) *Resolver {
	return NewResolver(ledger, source, locks, ResolverConfig{
		Oracle:   testOracle,
		Interval: time.Minute,
		LockTTL:  time.Second,
	}, slog.New(slog.DiscardHandler))
}

func TestTickResolvesDueMarkets(t *testing.T) {
	ledger := &fakeLedger{due: []domain.Market{
		dueMarket(1, "track-a"),
		dueMarket(2, "track-b"),
	}}
	source := &fakeSource{popularity: map[string]int64{"track-a": 90, "track-b": 50}}
	locks := &fakeLocks{}

	n, err := newTestResolver(ledger, source, locks).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 2 {
		t.Fatalf("resolved %d markets, want 2", n)
	}
	if ledger.caller != testOracle {
		t.Errorf("resolved as %s, want oracle identity", ledger.caller.Hex())
	}
	if ledger.observed[1] != 90 || ledger.observed[2] != 50 {
		t.Errorf("observed = %v", ledger.observed)
	}
	if locks.released != 2 {
		t.Errorf("released %d locks, want 2", locks.released)
	}
}

func TestTickNoDueMarkets(t *testing.T) {
	n, err := newTestResolver(&fakeLedger{}, &fakeSource{}, &fakeLocks{}).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 0 {
		t.Fatalf("resolved %d markets, want 0", n)
	}
}

func TestTickSkipsHeldLocks(t *testing.T) {
	ledger := &fakeLedger{due: []domain.Market{dueMarket(1, "track-a"), dueMarket(2, "track-b")}}
	source := &fakeSource{popularity: map[string]int64{"track-a": 90, "track-b": 50}}
	locks := &fakeLocks{held: map[string]bool{"resolve:market:1": true}}

	n, err := newTestResolver(ledger, source, locks).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	// Market 1 is counted as handled (another instance owns it) but only
	// market 2 reaches the ledger.
	if len(ledger.resolved) != 1 || ledger.resolved[0] != 2 {
		t.Fatalf("resolved = %v, want [2]", ledger.resolved)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
}

func TestTickToleratesAlreadyResolved(t *testing.T) {
	ledger := &fakeLedger{
		due:        []domain.Market{dueMarket(1, "track-a"), dueMarket(2, "track-b")},
		resolveErr: map[uint64]error{1: domain.ErrAlreadyResolved},
	}
	source := &fakeSource{popularity: map[string]int64{"track-a": 90, "track-b": 50}}

	n, err := newTestResolver(ledger, source, &fakeLocks{}).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	if len(ledger.resolved) != 1 || ledger.resolved[0] != 2 {
		t.Fatalf("resolved = %v, want [2]", ledger.resolved)
	}
}

func TestTickContinuesPastSourceFailure(t *testing.T) {
	ledger := &fakeLedger{due: []domain.Market{dueMarket(1, "track-a")}}
	source := &fakeSource{err: errors.New("spotify down")}

	n, err := newTestResolver(ledger, source, &fakeLocks{}).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
	if len(ledger.resolved) != 0 {
		t.Fatalf("resolved = %v, want none", ledger.resolved)
	}
}

func TestTickListError(t *testing.T) {
	wantErr := errors.New("db down")
	ledger := &fakeLedger{dueErr: wantErr}

	_, err := newTestResolver(ledger, &fakeSource{}, &fakeLocks{}).Tick(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}
