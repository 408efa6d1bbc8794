// Package ledger implements the market ledger and settlement engine: the
// state machine governing market creation, wager acceptance, resolution,
// and proportional payout of the combined pool.
package ledger

import "github.com/ethereum/go-ethereum/common"

// Authorizer is the capability check gating privileged operations. The
// reference deployment has a single creator and a single oracle identity,
// but keeping this behind an interface allows role-based or multi-oracle
// policies without touching the engine.
type Authorizer interface {
	// CanCreate reports whether the account may open new markets.
	CanCreate(account common.Address) bool
	// CanResolve reports whether the account may report observed values.
	CanResolve(account common.Address) bool
}

// SingleAuthority authorizes exactly one creator and one oracle address.
type SingleAuthority struct {
	Creator common.Address
	Oracle  common.Address
}

func (a SingleAuthority) CanCreate(account common.Address) bool {
	return account == a.Creator
}

func (a SingleAuthority) CanResolve(account common.Address) bool {
	return account == a.Oracle
}
