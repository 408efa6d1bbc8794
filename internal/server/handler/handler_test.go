package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

var (
	testCreator = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	testAlice   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
)

// fakeLedger implements the handler-facing service interfaces with canned
// responses.
type fakeLedger struct {
	market    domain.Market
	events    []domain.Event
	positions []domain.Position
	payout    *big.Int
	err       error

	lastCaller common.Address
	lastAmount *big.Int
	lastSide   domain.Side
}

func (f *fakeLedger) CreateMarket(ctx context.Context, caller common.Address, question, trackID string, threshold int64, deadline time.Time) (domain.Market, error) {
	f.lastCaller = caller
	if f.err != nil {
		return domain.Market{}, f.err
	}
	return f.market, nil
}

func (f *fakeLedger) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	if f.err != nil {
		return domain.Market{}, f.err
	}
	return f.market, nil
}

func (f *fakeLedger) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Market{f.market}, nil
}

func (f *fakeLedger) MarketEvents(ctx context.Context, marketID uint64) ([]domain.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeLedger) PlaceWager(ctx context.Context, caller common.Address, marketID uint64, side domain.Side, amount *big.Int) (domain.Market, error) {
	f.lastCaller, f.lastSide, f.lastAmount = caller, side, amount
	if f.err != nil {
		return domain.Market{}, f.err
	}
	return f.market, nil
}

func (f *fakeLedger) Resolve(ctx context.Context, caller common.Address, marketID uint64, observed int64) (domain.Event, error) {
	f.lastCaller = caller
	if f.err != nil {
		return domain.Event{}, f.err
	}
	return domain.Event{Type: domain.EventMarketResolved, MarketID: marketID}, nil
}

func (f *fakeLedger) Redeem(ctx context.Context, caller common.Address, marketID uint64) (*big.Int, error) {
	f.lastCaller = caller
	if f.err != nil {
		return nil, f.err
	}
	return f.payout, nil
}

func (f *fakeLedger) Positions(ctx context.Context, account common.Address) ([]domain.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func testMarket() domain.Market {
	return domain.Market{
		ID:        1,
		Question:  "popularity above 80",
		TrackID:   "track-1",
		Threshold: 80,
		Deadline:  time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		YesPool:   big.NewInt(100),
		NoPool:    big.NewInt(50),
	}
}

// newMux registers the handlers on a mux with the same patterns the server
// uses, so path parameters resolve.
func newMux(f *fakeLedger) *http.ServeMux {
	logger := testLogger()
	markets := NewMarketHandler(f, logger)
	wagers := NewWagerHandler(f, logger)
	resolve := NewResolveHandler(f, logger)
	redeem := NewRedeemHandler(f, logger)
	positions := NewPositionHandler(f, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/events", markets.MarketEvents)
	mux.HandleFunc("POST /api/markets/{id}/wagers", wagers.PlaceWager)
	mux.HandleFunc("POST /api/markets/{id}/resolve", resolve.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/redeem", redeem.Redeem)
	mux.HandleFunc("GET /api/positions", positions.ListPositions)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateMarket(t *testing.T) {
	f := &fakeLedger{market: testMarket()}
	mux := newMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/api/markets", map[string]any{
		"account":   testCreator.Hex(),
		"question":  "popularity above 80",
		"track_id":  "track-1",
		"threshold": 80,
		"deadline":  "2026-06-01T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if f.lastCaller != testCreator {
		t.Errorf("caller = %s", f.lastCaller.Hex())
	}

	var got domain.Market
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("market id = %d", got.ID)
	}
}

func TestCreateMarketBadAccount(t *testing.T) {
	mux := newMux(&fakeLedger{market: testMarket()})
	rec := doJSON(t, mux, http.MethodPost, "/api/markets", map[string]any{
		"account":  "not-an-address",
		"question": "q",
		"track_id": "t",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateMarketNotCreator(t *testing.T) {
	mux := newMux(&fakeLedger{err: domain.ErrNotCreator})
	rec := doJSON(t, mux, http.MethodPost, "/api/markets", map[string]any{
		"account":   testAlice.Hex(),
		"question":  "q",
		"track_id":  "t",
		"threshold": 80,
		"deadline":  "2026-06-01T00:00:00Z",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestGetMarketNotFound(t *testing.T) {
	mux := newMux(&fakeLedger{err: domain.ErrMarketNotFound})
	rec := doJSON(t, mux, http.MethodGet, "/api/markets/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("market not found")) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestGetMarketBadID(t *testing.T) {
	mux := newMux(&fakeLedger{market: testMarket()})
	rec := doJSON(t, mux, http.MethodGet, "/api/markets/zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPlaceWager(t *testing.T) {
	f := &fakeLedger{market: testMarket()}
	mux := newMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/api/markets/1/wagers", map[string]any{
		"account": testAlice.Hex(),
		"side":    "yes",
		"amount":  "1000000000000000000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if f.lastSide != domain.SideYes {
		t.Errorf("side = %s", f.lastSide)
	}
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if f.lastAmount.Cmp(want) != 0 {
		t.Errorf("amount = %s", f.lastAmount)
	}
}

func TestPlaceWagerRejections(t *testing.T) {
	cases := []struct {
		name       string
		body       map[string]any
		serviceErr error
		wantStatus int
	}{
		{
			name:       "bad side",
			body:       map[string]any{"account": testAlice.Hex(), "side": "maybe", "amount": "10"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad amount",
			body:       map[string]any{"account": testAlice.Hex(), "side": "yes", "amount": "ten"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "trading closed",
			body:       map[string]any{"account": testAlice.Hex(), "side": "yes", "amount": "10"},
			serviceErr: domain.ErrTradingClosed,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "invalid amount",
			body:       map[string]any{"account": testAlice.Hex(), "side": "yes", "amount": "0"},
			serviceErr: domain.ErrInvalidAmount,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newMux(&fakeLedger{err: tc.serviceErr})
			rec := doJSON(t, mux, http.MethodPost, "/api/markets/1/wagers", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.wantStatus, rec.Body)
			}
		})
	}
}

func TestResolveStatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{nil, http.StatusOK},
		{domain.ErrNotOracle, http.StatusForbidden},
		{domain.ErrBeforeDeadline, http.StatusConflict},
		{domain.ErrAlreadyResolved, http.StatusConflict},
		{domain.ErrInvalidObserved, http.StatusBadRequest},
	}

	for _, tc := range cases {
		mux := newMux(&fakeLedger{err: tc.err})
		rec := doJSON(t, mux, http.MethodPost, "/api/markets/1/resolve", map[string]any{
			"account":  testCreator.Hex(),
			"observed": 90,
		})
		if rec.Code != tc.wantStatus {
			t.Errorf("err %v: status = %d, want %d", tc.err, rec.Code, tc.wantStatus)
		}
	}
}

func TestRedeem(t *testing.T) {
	f := &fakeLedger{payout: big.NewInt(2000)}
	mux := newMux(f)

	rec := doJSON(t, mux, http.MethodPost, "/api/markets/1/redeem", map[string]any{
		"account": testAlice.Hex(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp redeemResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Payout != "2000" {
		t.Errorf("payout = %q", resp.Payout)
	}
}

func TestRedeemNoWinningShares(t *testing.T) {
	mux := newMux(&fakeLedger{err: domain.ErrNoWinningShares})
	rec := doJSON(t, mux, http.MethodPost, "/api/markets/1/redeem", map[string]any{
		"account": testAlice.Hex(),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("no winning shares")) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestListPositions(t *testing.T) {
	f := &fakeLedger{positions: []domain.Position{{
		MarketID: 1,
		Account:  testAlice,
		Side:     domain.SideYes,
		Stake:    big.NewInt(100),
	}}}
	mux := newMux(f)

	rec := doJSON(t, mux, http.MethodGet, "/api/positions?account="+testAlice.Hex(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp struct {
		Account   string            `json:"account"`
		Positions []domain.Position `json:"positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Positions) != 1 || resp.Positions[0].MarketID != 1 {
		t.Fatalf("positions = %+v", resp.Positions)
	}
}

func TestListPositionsMissingAccount(t *testing.T) {
	mux := newMux(&fakeLedger{})
	rec := doJSON(t, mux, http.MethodGet, "/api/positions", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
