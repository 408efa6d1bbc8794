package domain

import (
	"math/big"
	"time"
)

// Side is one of the two mutually exclusive outcomes an account can back.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Market is a single binary-outcome proposition with its own parimutuel
// pools and deadline. Pools are denominated in the smallest currency unit
// and can exceed int64 range, so they are kept as big integers.
type Market struct {
	ID         uint64     `json:"id"`
	Question   string     `json:"question"`
	TrackID    string     `json:"track_id"` // opaque subject id the oracle measures
	Threshold  int64      `json:"threshold"`
	Deadline   time.Time  `json:"deadline"`
	Resolved   bool       `json:"resolved"`
	OutcomeYes bool       `json:"outcome_yes"`
	YesPool    *big.Int   `json:"yes_pool"`
	NoPool     *big.Int   `json:"no_pool"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Pool returns the accumulator for the given side.
func (m Market) Pool(side Side) *big.Int {
	if side == SideYes {
		return m.YesPool
	}
	return m.NoPool
}

// TotalPot returns yesPool + noPool as a fresh big.Int.
func (m Market) TotalPot() *big.Int {
	return new(big.Int).Add(m.YesPool, m.NoPool)
}

// WinningSide returns the side that matches the resolved outcome. Only
// meaningful once Resolved is true.
func (m Market) WinningSide() Side {
	if m.OutcomeYes {
		return SideYes
	}
	return SideNo
}

// Snapshot returns a deep copy of the market so callers cannot mutate the
// ledger's pool accumulators through the returned value.
func (m Market) Snapshot() Market {
	out := m
	if m.YesPool != nil {
		out.YesPool = new(big.Int).Set(m.YesPool)
	}
	if m.NoPool != nil {
		out.NoPool = new(big.Int).Set(m.NoPool)
	}
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
