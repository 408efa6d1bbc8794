package ledger

import (
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	oracle  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol   = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

// oneUnit is 1.0 in the smallest currency unit (18 decimals, as the
// original pools were denominated).
var oneUnit = big.NewInt(1_000_000_000_000_000_000)

// fakeClock is a manually advanced clock shared with the engine under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, netting NettingPolicy) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	eng := New(Config{
		Authorizer: SingleAuthority{Creator: creator, Oracle: oracle},
		Netting:    netting,
		Clock:      clock.Now,
	}, slog.New(slog.DiscardHandler))
	return eng, clock
}

// createDefault opens the canonical test market: threshold 80, one hour out.
func createDefault(t *testing.T, eng *Engine, clock *fakeClock) uint64 {
	t.Helper()
	id, _, err := eng.CreateMarket(creator,
		"Will the track reach popularity >= 80?",
		"4uLU6hMCjMI75M1A2tKUQC",
		80,
		clock.Now().Add(time.Hour),
	)
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return id
}

func mustWager(t *testing.T, eng *Engine, acct common.Address, id uint64, side domain.Side, amount *big.Int) {
	t.Helper()
	if _, err := eng.PlaceWager(acct, id, side, amount); err != nil {
		t.Fatalf("PlaceWager(%s, %s): %v", acct.Hex(), side, err)
	}
}

func TestCreateMarket_SequentialIDs(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	for want := uint64(1); want <= 3; want++ {
		id, ev, err := eng.CreateMarket(creator, "q", "track", 10, clock.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("CreateMarket #%d: %v", want, err)
		}
		if id != want {
			t.Errorf("id = %d, want %d", id, want)
		}
		if ev.Type != domain.EventMarketCreated || ev.MarketID != want {
			t.Errorf("event = %+v, want market_created for %d", ev, want)
		}
	}
}

func TestCreateMarket_Rejections(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)

	if _, _, err := eng.CreateMarket(alice, "q", "t", 80, clock.Now().Add(time.Hour)); !errors.Is(err, domain.ErrNotCreator) {
		t.Errorf("non-creator create: err = %v, want ErrNotCreator", err)
	}
	if _, _, err := eng.CreateMarket(creator, "q", "t", 0, clock.Now().Add(time.Hour)); !errors.Is(err, domain.ErrInvalidThreshold) {
		t.Errorf("zero threshold: err = %v, want ErrInvalidThreshold", err)
	}
	if _, _, err := eng.CreateMarket(creator, "q", "t", -5, clock.Now().Add(time.Hour)); !errors.Is(err, domain.ErrInvalidThreshold) {
		t.Errorf("negative threshold: err = %v, want ErrInvalidThreshold", err)
	}
	if _, _, err := eng.CreateMarket(creator, "q", "t", 80, clock.Now()); !errors.Is(err, domain.ErrPastDeadline) {
		t.Errorf("deadline == now: err = %v, want ErrPastDeadline", err)
	}
	if _, _, err := eng.CreateMarket(creator, "q", "t", 80, clock.Now().Add(-time.Minute)); !errors.Is(err, domain.ErrPastDeadline) {
		t.Errorf("past deadline: err = %v, want ErrPastDeadline", err)
	}

	// No market should have been allocated by any rejected attempt.
	if got := len(eng.Markets()); got != 0 {
		t.Errorf("markets after rejections = %d, want 0", got)
	}
}

func TestPlaceWager_Rejections(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	if _, err := eng.PlaceWager(alice, 99, domain.SideYes, oneUnit); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("unknown market: err = %v, want ErrMarketNotFound", err)
	}
	if _, err := eng.PlaceWager(alice, id, domain.SideYes, big.NewInt(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := eng.PlaceWager(alice, id, domain.SideYes, big.NewInt(-1)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("negative amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := eng.PlaceWager(alice, id, domain.SideYes, nil); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("nil amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := eng.PlaceWager(alice, id, domain.Side("maybe"), oneUnit); err == nil {
		t.Error("unknown side accepted")
	}

	// Rejections must leave the pools untouched.
	m, err := eng.GetMarket(id)
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if m.YesPool.Sign() != 0 || m.NoPool.Sign() != 0 {
		t.Errorf("pools = %s/%s, want 0/0", m.YesPool, m.NoPool)
	}
}

func TestTemporalGating(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	// Wager at now == deadline fails: the boundary is exclusive for wagers.
	clock.Advance(time.Hour)
	if _, err := eng.PlaceWager(alice, id, domain.SideYes, oneUnit); !errors.Is(err, domain.ErrTradingClosed) {
		t.Errorf("wager at deadline: err = %v, want ErrTradingClosed", err)
	}

	// Resolve at now == deadline succeeds: the boundary is inclusive.
	if _, err := eng.Resolve(oracle, id, 90); err != nil {
		t.Errorf("resolve at deadline: %v", err)
	}
}

func TestResolve_BeforeDeadline(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	if _, err := eng.Resolve(oracle, id, 90); !errors.Is(err, domain.ErrBeforeDeadline) {
		t.Errorf("err = %v, want ErrBeforeDeadline", err)
	}
	m, _ := eng.GetMarket(id)
	if m.Resolved {
		t.Error("market resolved despite rejection")
	}
}

func TestResolve_AccessControl(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	// Rejected regardless of deadline state.
	if _, err := eng.Resolve(creator, id, 90); !errors.Is(err, domain.ErrNotOracle) {
		t.Errorf("before deadline, non-oracle: err = %v, want ErrNotOracle", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := eng.Resolve(alice, id, 90); !errors.Is(err, domain.ErrNotOracle) {
		t.Errorf("after deadline, non-oracle: err = %v, want ErrNotOracle", err)
	}
}

func TestResolve_Rejections(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)
	clock.Advance(2 * time.Hour)

	if _, err := eng.Resolve(oracle, 42, 90); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("unknown market: err = %v, want ErrMarketNotFound", err)
	}
	if _, err := eng.Resolve(oracle, id, -1); !errors.Is(err, domain.ErrInvalidObserved) {
		t.Errorf("negative observed: err = %v, want ErrInvalidObserved", err)
	}
}

func TestResolve_ExactlyOnce(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)
	mustWager(t, eng, alice, id, domain.SideYes, oneUnit)
	mustWager(t, eng, bob, id, domain.SideNo, oneUnit)
	clock.Advance(2 * time.Hour)

	ev, err := eng.Resolve(oracle, id, 90)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if ev.Type != domain.EventMarketResolved {
		t.Errorf("event type = %s, want market_resolved", ev.Type)
	}
	first, _ := eng.GetMarket(id)

	// The second call must always reject, and nothing may change.
	if _, err := eng.Resolve(oracle, id, 10); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("second resolve: err = %v, want ErrAlreadyResolved", err)
	}
	second, _ := eng.GetMarket(id)
	if second.OutcomeYes != first.OutcomeYes ||
		second.YesPool.Cmp(first.YesPool) != 0 ||
		second.NoPool.Cmp(first.NoPool) != 0 {
		t.Errorf("market changed after rejected resolve: %+v vs %+v", second, first)
	}
}

func TestEndToEnd_YesWins(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	mustWager(t, eng, alice, id, domain.SideYes, oneUnit)
	mustWager(t, eng, bob, id, domain.SideNo, oneUnit)

	clock.Advance(time.Hour + time.Second)
	if _, err := eng.Resolve(oracle, id, 90); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	payout, ev, err := eng.Redeem(alice, id)
	if err != nil {
		t.Fatalf("Redeem(alice): %v", err)
	}
	want := new(big.Int).Mul(oneUnit, big.NewInt(2))
	if payout.Cmp(want) != 0 {
		t.Errorf("payout = %s, want %s", payout, want)
	}
	if ev.Type != domain.EventRedeemed {
		t.Errorf("event type = %s, want redeemed", ev.Type)
	}

	if _, _, err := eng.Redeem(bob, id); !errors.Is(err, domain.ErrNoWinningShares) {
		t.Errorf("Redeem(bob): err = %v, want ErrNoWinningShares", err)
	}
}

func TestEndToEnd_NoWins(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	mustWager(t, eng, alice, id, domain.SideYes, oneUnit)
	mustWager(t, eng, bob, id, domain.SideNo, oneUnit)

	clock.Advance(time.Hour + time.Second)
	if _, err := eng.Resolve(oracle, id, 50); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	payout, _, err := eng.Redeem(bob, id)
	if err != nil {
		t.Fatalf("Redeem(bob): %v", err)
	}
	want := new(big.Int).Mul(oneUnit, big.NewInt(2))
	if payout.Cmp(want) != 0 {
		t.Errorf("payout = %s, want %s", payout, want)
	}

	if _, _, err := eng.Redeem(alice, id); !errors.Is(err, domain.ErrNoWinningShares) {
		t.Errorf("Redeem(alice): err = %v, want ErrNoWinningShares", err)
	}
}

func TestResolve_ObservedEqualsThreshold(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)
	clock.Advance(2 * time.Hour)

	if _, err := eng.Resolve(oracle, id, 80); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	m, _ := eng.GetMarket(id)
	if !m.OutcomeYes {
		t.Error("observed == threshold should resolve YES")
	}
}

func TestRedeem_ExactlyOnce(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)
	mustWager(t, eng, alice, id, domain.SideYes, oneUnit)
	clock.Advance(2 * time.Hour)
	if _, err := eng.Resolve(oracle, id, 90); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if _, _, err := eng.Redeem(alice, id); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := eng.Redeem(alice, id); !errors.Is(err, domain.ErrNoWinningShares) {
			t.Fatalf("redeem #%d: err = %v, want ErrNoWinningShares", i+2, err)
		}
	}

	positions := eng.Positions(alice)
	if len(positions) != 1 || !positions[0].Claimed {
		t.Errorf("positions = %+v, want single claimed position", positions)
	}
}

func TestRedeem_Rejections(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)
	mustWager(t, eng, alice, id, domain.SideYes, oneUnit)

	if _, _, err := eng.Redeem(alice, 42); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("unknown market: err = %v, want ErrMarketNotFound", err)
	}
	// Unresolved market: no winning side exists yet.
	if _, _, err := eng.Redeem(alice, id); !errors.Is(err, domain.ErrNoWinningShares) {
		t.Errorf("unresolved: err = %v, want ErrNoWinningShares", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := eng.Resolve(oracle, id, 90); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Carol never wagered.
	if _, _, err := eng.Redeem(carol, id); !errors.Is(err, domain.ErrNoWinningShares) {
		t.Errorf("no position: err = %v, want ErrNoWinningShares", err)
	}
}

func TestWager_AfterResolutionClosed(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	// Resolution only needs the deadline to pass; pools may be empty.
	id := createDefault(t, eng, clock)
	clock.Advance(2 * time.Hour)
	if _, err := eng.Resolve(oracle, id, 90); err != nil {
		t.Fatalf("Resolve on empty market: %v", err)
	}
	if _, err := eng.PlaceWager(alice, id, domain.SideYes, oneUnit); !errors.Is(err, domain.ErrTradingClosed) {
		t.Errorf("err = %v, want ErrTradingClosed", err)
	}
}

func TestProportionality_AndConservation(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	// Stakes chosen to force floor truncation: pot 10, winning pool 3.
	stakes := map[common.Address]*big.Int{
		alice: big.NewInt(1),
		bob:   big.NewInt(2),
	}
	mustWager(t, eng, alice, id, domain.SideYes, stakes[alice])
	mustWager(t, eng, bob, id, domain.SideYes, stakes[bob])
	mustWager(t, eng, carol, id, domain.SideNo, big.NewInt(7))

	clock.Advance(2 * time.Hour)
	if _, err := eng.Resolve(oracle, id, 100); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pot := big.NewInt(10)
	payouts := map[common.Address]*big.Int{}
	total := new(big.Int)
	for _, acct := range []common.Address{alice, bob} {
		p, _, err := eng.Redeem(acct, id)
		if err != nil {
			t.Fatalf("Redeem(%s): %v", acct.Hex(), err)
		}
		payouts[acct] = p
		total.Add(total, p)
	}

	// floor(1*10/3) = 3, floor(2*10/3) = 6.
	if payouts[alice].Cmp(big.NewInt(3)) != 0 {
		t.Errorf("alice payout = %s, want 3", payouts[alice])
	}
	if payouts[bob].Cmp(big.NewInt(6)) != 0 {
		t.Errorf("bob payout = %s, want 6", payouts[bob])
	}

	// Conservation: issued payouts never exceed the pot; the dust (1 unit
	// here) stays in the ledger.
	if total.Cmp(pot) > 0 {
		t.Errorf("total payouts %s exceed pot %s", total, pot)
	}

	// payout(A)*sB == payout(B)*sA up to one unit of rounding per side.
	lhs := new(big.Int).Mul(payouts[alice], stakes[bob])
	rhs := new(big.Int).Mul(payouts[bob], stakes[alice])
	diff := new(big.Int).Abs(new(big.Int).Sub(lhs, rhs))
	bound := new(big.Int).Add(stakes[alice], stakes[bob])
	if diff.Cmp(bound) > 0 {
		t.Errorf("proportionality violated: |%s - %s| > %s", lhs, rhs, bound)
	}
}

func TestSameSideStakesAccumulate(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	mustWager(t, eng, alice, id, domain.SideYes, big.NewInt(300))
	mustWager(t, eng, alice, id, domain.SideYes, big.NewInt(700))

	positions := eng.Positions(alice)
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	if positions[0].Stake.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("stake = %s, want 1000", positions[0].Stake)
	}
	m, _ := eng.GetMarket(id)
	if m.YesPool.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("yes pool = %s, want 1000", m.YesPool)
	}
}

func TestNetting_Independent(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	mustWager(t, eng, alice, id, domain.SideYes, big.NewInt(100))
	mustWager(t, eng, alice, id, domain.SideNo, big.NewInt(40))

	positions := eng.Positions(alice)
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want 2 (one per side)", len(positions))
	}
	if positions[0].Side != domain.SideYes || positions[1].Side != domain.SideNo {
		t.Errorf("position order = %s, %s, want yes then no", positions[0].Side, positions[1].Side)
	}

	// Only the winning-side position redeems.
	clock.Advance(2 * time.Hour)
	if _, err := eng.Resolve(oracle, id, 90); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	payout, _, err := eng.Redeem(alice, id)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	// stake 100 of a 100 winning pool, pot 140.
	if payout.Cmp(big.NewInt(140)) != 0 {
		t.Errorf("payout = %s, want 140", payout)
	}
	if _, _, err := eng.Redeem(alice, id); !errors.Is(err, domain.ErrNoWinningShares) {
		t.Errorf("second redeem: err = %v, want ErrNoWinningShares", err)
	}
}

func TestNetting_Reject(t *testing.T) {
	eng, clock := newTestEngine(t, NettingReject)
	id := createDefault(t, eng, clock)

	mustWager(t, eng, alice, id, domain.SideYes, big.NewInt(100))
	if _, err := eng.PlaceWager(alice, id, domain.SideNo, big.NewInt(40)); !errors.Is(err, domain.ErrOppositeSide) {
		t.Errorf("err = %v, want ErrOppositeSide", err)
	}
	// Same side still accumulates, and other accounts are unaffected.
	mustWager(t, eng, alice, id, domain.SideYes, big.NewInt(50))
	mustWager(t, eng, bob, id, domain.SideNo, big.NewInt(40))

	m, _ := eng.GetMarket(id)
	if m.YesPool.Cmp(big.NewInt(150)) != 0 || m.NoPool.Cmp(big.NewInt(40)) != 0 {
		t.Errorf("pools = %s/%s, want 150/40", m.YesPool, m.NoPool)
	}
}

func TestWagerEvent_Payload(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	ev, err := eng.PlaceWager(alice, id, domain.SideNo, big.NewInt(55))
	if err != nil {
		t.Fatalf("PlaceWager: %v", err)
	}
	if ev.Type != domain.EventWagerPlaced || ev.MarketID != id {
		t.Fatalf("event = %+v", ev)
	}
	if ev.ID == "" {
		t.Error("event missing id")
	}
	if got := string(ev.Payload); got == "" {
		t.Error("event missing payload")
	}
}

func TestConcurrentWagers_SameMarket(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)

	const workers = 16
	const perWorker = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		acct := alice
		side := domain.SideYes
		if w%2 == 1 {
			acct = bob
			side = domain.SideNo
		}
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := eng.PlaceWager(acct, id, side, big.NewInt(1)); err != nil {
					t.Errorf("PlaceWager: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	m, _ := eng.GetMarket(id)
	want := big.NewInt(workers / 2 * perWorker)
	if m.YesPool.Cmp(want) != 0 || m.NoPool.Cmp(want) != 0 {
		t.Errorf("pools = %s/%s, want %s/%s", m.YesPool, m.NoPool, want, want)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)
	mustWager(t, eng, alice, id, domain.SideYes, big.NewInt(100))

	m, _ := eng.GetMarket(id)
	m.YesPool.SetInt64(0) // mutating the snapshot must not touch the ledger

	again, _ := eng.GetMarket(id)
	if again.YesPool.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("ledger pool mutated through snapshot: %s", again.YesPool)
	}
}

func TestUnresolvedPastDeadline(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	early, _, err := eng.CreateMarket(creator, "early", "t1", 10, clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := eng.CreateMarket(creator, "late", "t2", 10, clock.Now().Add(48*time.Hour)); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Hour)
	due := eng.UnresolvedPastDeadline(clock.Now())
	if len(due) != 1 || due[0].ID != early {
		t.Fatalf("due = %+v, want only market %d", due, early)
	}

	if _, err := eng.Resolve(oracle, early, 50); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if due := eng.UnresolvedPastDeadline(clock.Now()); len(due) != 0 {
		t.Errorf("due after resolve = %+v, want none", due)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	eng, clock := newTestEngine(t, NettingIndependent)
	id := createDefault(t, eng, clock)
	mustWager(t, eng, alice, id, domain.SideYes, oneUnit)
	mustWager(t, eng, bob, id, domain.SideNo, oneUnit)
	clock.Advance(2 * time.Hour)
	if _, err := eng.Resolve(oracle, id, 90); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	markets := eng.Markets()
	var positions []domain.Position
	for _, acct := range []common.Address{alice, bob} {
		positions = append(positions, eng.Positions(acct)...)
	}

	restored, _ := newTestEngine(t, NettingIndependent)
	if err := restored.Restore(markets, positions); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// Redemption picks up where the old engine left off.
	payout, _, err := restored.Redeem(alice, id)
	if err != nil {
		t.Fatalf("Redeem after restore: %v", err)
	}
	want := new(big.Int).Mul(oneUnit, big.NewInt(2))
	if payout.Cmp(want) != 0 {
		t.Errorf("payout = %s, want %s", payout, want)
	}

	// Sequential ids continue after the restored maximum.
	next, _, err := restored.CreateMarket(creator, "next", "t", 10, clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateMarket after restore: %v", err)
	}
	if next != id+1 {
		t.Errorf("next id = %d, want %d", next, id+1)
	}
}

func TestRestore_Invalid(t *testing.T) {
	eng, _ := newTestEngine(t, NettingIndependent)
	err := eng.Restore(nil, []domain.Position{{MarketID: 7, Account: alice, Side: domain.SideYes, Stake: big.NewInt(1)}})
	if err == nil {
		t.Error("restore accepted position for unknown market")
	}
}
