package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// PopularitySource measures the observable a market's question is about.
type PopularitySource interface {
	TrackPopularity(ctx context.Context, trackID string) (int64, error)
}

// Ledger is the narrow slice of the ledger service the resolver needs.
type Ledger interface {
	DueMarkets(ctx context.Context, at time.Time) ([]domain.Market, error)
	Resolve(ctx context.Context, caller common.Address, marketID uint64, observed int64) (domain.Event, error)
}

// ResolverConfig configures the background resolution loop.
type ResolverConfig struct {
	// Oracle is the identity the resolver acts as. It must match the
	// ledger's configured oracle address or every resolution is rejected.
	Oracle common.Address

	// Interval between scans for due markets.
	Interval time.Duration

	// LockTTL bounds how long a per-market resolution lock is held.
	LockTTL time.Duration
}

// Resolver periodically scans for markets past their deadline, measures the
// observable for each, and resolves them as the oracle identity. A
// distributed lock per market keeps concurrent resolver instances from
// racing; the ledger's resolve-once rule backstops any lock expiry.
type Resolver struct {
	ledger Ledger
	source PopularitySource
	locks  domain.LockManager
	cfg    ResolverConfig
	logger *slog.Logger
}

// NewResolver creates a Resolver. Interval defaults to one minute and
// LockTTL to thirty seconds when unset.
func NewResolver(ledger Ledger, source PopularitySource, locks domain.LockManager, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Resolver{
		ledger: ledger,
		source: source,
		locks:  locks,
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes the resolution loop until the context is cancelled. Errors
// from individual ticks are logged and do not stop the loop.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("resolver started", "interval", r.cfg.Interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resolver stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil {
				r.logger.Error("resolver tick failed", "error", err)
			}
		}
	}
}

// Tick performs a single scan-and-resolve pass and returns how many markets
// were resolved. A failure on one market does not abort the rest of the
// pass.
func (r *Resolver) Tick(ctx context.Context) (int, error) {
	due, err := r.ledger.DueMarkets(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("oracle: list due markets: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	resolved := 0
	for _, m := range due {
		if err := r.resolveOne(ctx, m); err != nil {
			r.logger.Error("resolve failed",
				"market_id", m.ID,
				"track_id", m.TrackID,
				"error", err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (r *Resolver) resolveOne(ctx context.Context, m domain.Market) error {
	unlock, err := r.locks.Acquire(ctx, fmt.Sprintf("resolve:market:%d", m.ID), r.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			// Another resolver instance is on it.
			return nil
		}
		return err
	}
	defer unlock()

	observed, err := r.source.TrackPopularity(ctx, m.TrackID)
	if err != nil {
		return err
	}

	_, err = r.ledger.Resolve(ctx, r.cfg.Oracle, m.ID, observed)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			// Lost the race to another instance after our scan.
			return nil
		}
		return err
	}

	r.logger.Info("market resolved",
		"market_id", m.ID,
		"track_id", m.TrackID,
		"observed", observed,
		"threshold", m.Threshold)
	return nil
}
