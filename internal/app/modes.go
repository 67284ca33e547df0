package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coinpulse/arbscan/internal/arbitrage"
	"github.com/coinpulse/arbscan/internal/domain"
	"github.com/coinpulse/arbscan/internal/notify"
	"github.com/coinpulse/arbscan/internal/server"
	"github.com/coinpulse/arbscan/internal/server/handler"
	"github.com/coinpulse/arbscan/internal/server/ws"
)

// ScanMode runs the periodic scan loop without the HTTP server. Opportunities
// are pushed through the configured notification channels.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.String("strategy", a.cfg.Scanner.Strategy),
	)

	a.hookOpportunityAlerts(ctx, deps, nil)

	sched := arbitrage.NewScheduler(deps.Engine, a.cfg.Scanner.Strategy,
		a.cfg.Scanner.Interval.Duration, a.logger)
	return sched.Run(ctx)
}

// ServeMode runs the HTTP API and WebSocket hub without a background scan
// loop. Scans happen on demand per request.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	hub := ws.NewHub(a.logger)
	a.hookOpportunityAlerts(ctx, deps, hub)
	a.startHTTPServer(ctx, g, deps, hub)
	return g.Wait()
}

// OnceMode runs a single scan cycle, logs the ranked results, and exits.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting single scan",
		slog.String("strategy", a.cfg.Scanner.Strategy),
	)

	results, err := deps.Engine.Scan(ctx, a.cfg.Scanner.Strategy)
	if err != nil {
		return fmt.Errorf("single scan: %w", err)
	}
	for _, r := range results {
		a.logger.InfoContext(ctx, "scan result",
			slog.String("symbol", r.Symbol),
			slog.Float64("score", r.Score),
			slog.String("buy", r.BestBuyVenue),
			slog.String("sell", r.BestSellVenue),
			slog.Float64("spread_pct", r.SpreadPercent),
			slog.Float64("est_profit", r.EstProfit),
			slog.Bool("recommended", r.Recommended),
		)
	}
	a.logger.InfoContext(ctx, "single scan complete", slog.Int("results", len(results)))
	return nil
}

// FullMode runs both the periodic scan loop and the HTTP API. Each completed
// cycle is broadcast to WebSocket clients.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("strategy", a.cfg.Scanner.Strategy),
	)

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	a.hookOpportunityAlerts(ctx, deps, hub)

	sched := arbitrage.NewScheduler(deps.Engine, a.cfg.Scanner.Strategy,
		a.cfg.Scanner.Interval.Duration, a.logger)
	sched.OnResults(hub.BroadcastResults)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub)
	}

	return g.Wait()
}

// hookOpportunityAlerts forwards engine opportunity events to the notifier
// and, when a hub is given, to connected WebSocket clients.
func (a *App) hookOpportunityAlerts(ctx context.Context, deps *Dependencies, hub *ws.Hub) {
	deps.Engine.OnOpportunity(func(r domain.ScanResult) {
		title, message := notify.FormatOpportunity(r)
		if err := deps.Notifier.Notify(ctx, notify.EventOpportunityFound, title, message); err != nil {
			a.logger.WarnContext(ctx, "opportunity notification failed",
				slog.String("symbol", r.Symbol),
				slog.String("error", err.Error()),
			)
		}
		if hub != nil {
			hub.BroadcastOpportunity(r)
		}
	})
}

// startHTTPServer adds the HTTP server and its graceful-shutdown watcher to
// the given errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Scan:   handler.NewScanHandler(deps.Engine, a.cfg.Scanner.Strategy, a.logger),
	}, hub, a.logger)

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
