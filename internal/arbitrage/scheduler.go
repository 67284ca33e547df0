package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/coinpulse/arbscan/internal/domain"
)

// Clock abstracts the scheduler's time source so interval behavior is
// testable without wall-clock sleeps.
type Clock interface {
	Now() time.Time
	// Tick returns a channel delivering ticks every d, and a stop function.
	Tick(d time.Duration) (<-chan time.Time, func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Tick(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Scheduler drives the engine on a fixed cadence: one scan immediately, then
// one per interval until the context ends.
type Scheduler struct {
	engine    *Engine
	strategy  string
	interval  time.Duration
	clock     Clock
	logger    *slog.Logger
	onResults func([]domain.ScanResult)
}

func NewScheduler(engine *Engine, strategy string, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		engine:   engine,
		strategy: strategy,
		interval: interval,
		clock:    realClock{},
		logger:   logger.With(slog.String("component", "scan-scheduler")),
	}
}

// OnResults registers a callback invoked with the ranked results of every
// completed scan cycle. Must be set before Run.
func (s *Scheduler) OnResults(fn func([]domain.ScanResult)) {
	s.onResults = fn
}

// Run blocks until ctx is done. Scan failures are logged and the cadence
// continues; only cancellation stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scan scheduler started",
		slog.String("strategy", s.strategy),
		slog.Duration("interval", s.interval))

	ticks, stop := s.clock.Tick(s.interval)
	defer stop()

	s.scanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan scheduler stopped")
			return ctx.Err()
		case <-ticks:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scheduler) scanOnce(ctx context.Context) {
	start := s.clock.Now()
	results, err := s.engine.Scan(ctx, s.strategy)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("scan cycle failed", slog.Any("error", err))
		}
		return
	}
	s.logger.Info("scan cycle complete",
		slog.Int("results", len(results)),
		slog.Duration("took", s.clock.Now().Sub(start)))
	if s.onResults != nil {
		s.onResults(results)
	}
}
