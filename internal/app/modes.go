package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vybelabs/vybeledger/internal/oracle"
	"github.com/vybelabs/vybeledger/internal/server"
	"github.com/vybelabs/vybeledger/internal/server/handler"
	"github.com/vybelabs/vybeledger/internal/server/ws"
)

// ServerMode runs the HTTP API and the WebSocket hub. Markets are created,
// wagered on, and redeemed through the API; resolution only happens through
// the manual resolve endpoint.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ResolverMode runs only the background resolution loop: scan for markets
// past their deadline, measure each market's observable, and resolve as the
// oracle identity. No HTTP API is exposed.
func (a *App) ResolverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolver mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startResolver(ctx, g, deps); err != nil {
		return fmt.Errorf("resolver mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs the HTTP API, the WebSocket hub, and the background
// resolver in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startResolver(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// startResolver builds the Spotify client and adds the resolution loop to
// the errgroup.
func (a *App) startResolver(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	spotify, err := oracle.NewSpotifyClient(oracle.SpotifyConfig{
		ClientID:     a.cfg.Oracle.ClientID,
		ClientSecret: a.cfg.Oracle.ClientSecret,
		StaticToken:  a.cfg.Oracle.AccessToken,
		TokenURL:     a.cfg.Oracle.TokenURL,
		APIURL:       a.cfg.Oracle.APIBaseURL,
	}, nil)
	if err != nil {
		return fmt.Errorf("build spotify client: %w", err)
	}

	resolver := oracle.NewResolver(deps.Ledger, spotify, deps.LockManager, oracle.ResolverConfig{
		Oracle:   a.cfg.Ledger.Oracle(),
		Interval: a.cfg.Oracle.ResolveInterval.Duration,
	}, a.logger)

	g.Go(func() error {
		err := resolver.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("resolver loop: %w", err)
	})

	a.logger.InfoContext(ctx, "resolver started",
		slog.Duration("interval", a.cfg.Oracle.ResolveInterval.Duration),
	)
	return nil
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(deps.Ledger, a.logger),
		Wagers:    handler.NewWagerHandler(deps.Ledger, a.logger),
		Resolve:   handler.NewResolveHandler(deps.Ledger, a.logger),
		Redeem:    handler.NewRedeemHandler(deps.Ledger, a.logger),
		Positions: handler.NewPositionHandler(deps.Ledger, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.Archiver != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.Archiver, deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  time.Duration(a.cfg.Server.RateWindowSecs) * time.Second,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
