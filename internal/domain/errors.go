package domain

import "errors"

var (
	// ErrNotFound is the generic store-level miss.
	ErrNotFound = errors.New("not found")

	// Ledger operation rejections. Every precondition check happens before
	// any state mutation, so each of these means the operation was a no-op.
	ErrMarketNotFound   = errors.New("market not found")
	ErrTradingClosed    = errors.New("trading closed")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidThreshold = errors.New("threshold must be positive")
	ErrPastDeadline     = errors.New("deadline must be in the future")
	ErrInvalidObserved  = errors.New("observed value must be non-negative")
	ErrNotCreator       = errors.New("not market creator")
	ErrNotOracle        = errors.New("not oracle")
	ErrBeforeDeadline   = errors.New("before deadline")
	ErrAlreadyResolved  = errors.New("already resolved")
	ErrNoWinningShares  = errors.New("no winning shares")
	ErrOppositeSide     = errors.New("account already holds the opposite side")

	// ErrLockHeld is returned when a distributed lock is already held by
	// another party.
	ErrLockHeld = errors.New("lock already held")
)
