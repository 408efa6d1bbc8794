package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is an account's accumulated stake on one side of one market.
// Positions are created lazily on first wager and never deleted; after a
// successful redemption Claimed flips true and stays true.
type Position struct {
	MarketID  uint64         `json:"market_id"`
	Account   common.Address `json:"account"`
	Side      Side           `json:"side"`
	Stake     *big.Int       `json:"stake"`
	Claimed   bool           `json:"claimed"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Snapshot returns a deep copy of the position.
func (p Position) Snapshot() Position {
	out := p
	if p.Stake != nil {
		out.Stake = new(big.Int).Set(p.Stake)
	}
	return out
}
