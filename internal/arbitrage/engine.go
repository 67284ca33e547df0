package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coinpulse/arbscan/internal/domain"
)

// popularSymbols is the static candidate list every cycle scans; user pairs
// from config are unioned in.
var popularSymbols = []string{
	"BTC/USDT", "ETH/USDT", "BNB/USDT", "SOL/USDT", "XRP/USDT",
	"ADA/USDT", "DOGE/USDT", "DOT/USDT", "LINK/USDT", "AVAX/USDT",
}

const recommendedCount = 3

// Oracle supplies best-effort market-cap and 24h-change context. A failing
// oracle degrades scoring, never a scan.
type Oracle interface {
	GetTopCoins(ctx context.Context, n int) ([]domain.Coin, error)
}

// Options tune one engine instance.
type Options struct {
	Notional            float64  // reference trade size in quote units
	RoundTripFeePercent float64  // buy+sell fee assumed against the notional
	MaxResults          int      // ranked results kept per cycle
	AlertThreshold      float64  // top score at or above this raises the event
	Pairs               []string // user-configured symbols beyond the popular list
	StaleAfter          time.Duration
}

func (o Options) withDefaults() Options {
	if o.Notional <= 0 {
		o.Notional = 1000
	}
	if o.RoundTripFeePercent <= 0 {
		o.RoundTripFeePercent = 0.2
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 20
	}
	if o.AlertThreshold <= 0 {
		o.AlertThreshold = 70
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Second
	}
	return o
}

// Engine fans ticker requests out across every enabled exchange, computes
// cross-venue crossings and publishes a ranked snapshot each cycle. It holds
// no long-lived locks: the only shared state is the latest result slice,
// replaced wholesale.
type Engine struct {
	exchanges []domain.Exchange
	registry  *Registry
	oracle    Oracle // may be nil
	logger    *slog.Logger
	opts      Options
	cooldown  *cooldownTracker
	now       func() time.Time

	onOpportunity func(domain.ScanResult)

	mu     sync.RWMutex
	latest []domain.ScanResult
}

func NewEngine(exchanges []domain.Exchange, registry *Registry, oracle Oracle, opts Options, logger *slog.Logger) *Engine {
	return &Engine{
		exchanges: exchanges,
		registry:  registry,
		oracle:    oracle,
		logger:    logger.With(slog.String("component", "arbitrage-engine")),
		opts:      opts.withDefaults(),
		cooldown:  newCooldownTracker(),
		now:       time.Now,
	}
}

// OnOpportunity registers the handler invoked at most once per cycle, when
// the top-ranked score reaches the alert threshold. Must be set before the
// first scan.
func (e *Engine) OnOpportunity(fn func(domain.ScanResult)) {
	e.onOpportunity = fn
}

// Scan runs one full cycle under the named strategy and publishes the ranked
// snapshot. A cancelled cycle discards partial results and publishes nothing.
func (e *Engine) Scan(ctx context.Context, strategy string) ([]domain.ScanResult, error) {
	strat, err := e.registry.Get(strategy)
	if err != nil {
		return nil, err
	}

	bases, coins, err := e.gather(ctx, e.symbols())
	if err != nil {
		return nil, err
	}

	ranked := e.rank(e.scoreAll(strat, bases, coins))
	e.publish(ranked)
	return ranked, nil
}

// ScanAllStrategies fetches each symbol once, scores it under every
// registered strategy, and keeps the highest score per symbol.
func (e *Engine) ScanAllStrategies(ctx context.Context) ([]domain.ScanResult, error) {
	bases, coins, err := e.gather(ctx, e.symbols())
	if err != nil {
		return nil, err
	}

	best := make(map[string]domain.ScanResult)
	for _, name := range e.registry.List() {
		strat, err := e.registry.Get(name)
		if err != nil {
			continue
		}
		for _, r := range e.scoreAll(strat, bases, coins) {
			if cur, ok := best[r.Symbol]; !ok || r.Score > cur.Score {
				best[r.Symbol] = r
			}
		}
	}

	merged := make([]domain.ScanResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	ranked := e.rank(merged)
	e.publish(ranked)
	return ranked, nil
}

// AnalyzeCoin scans a single symbol under the arbitrage_best strategy. It is
// a pure query: the published snapshot is untouched. Returns nil when fewer
// than two venues responded.
func (e *Engine) AnalyzeCoin(ctx context.Context, symbol string) (*domain.ScanResult, error) {
	if _, _, err := domain.SplitSymbol(symbol); err != nil {
		symbol = strings.ToUpper(symbol) + "/USDT"
	}

	strat, err := e.registry.Get(ArbitrageBest{}.Name())
	if err != nil {
		return nil, err
	}
	bases, coins, err := e.gather(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	scored := e.scoreAll(strat, bases, coins)
	if len(scored) == 0 {
		return nil, nil
	}
	return &scored[0], nil
}

// GetBestOpportunity returns the top-ranked result of the last published
// cycle, or nil before the first one.
func (e *Engine) GetBestOpportunity() *domain.ScanResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.latest) == 0 {
		return nil
	}
	top := e.latest[0]
	return &top
}

// Latest returns the last published snapshot.
func (e *Engine) Latest() []domain.ScanResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// ExchangeStatus describes one venue's availability for the query surface.
type ExchangeStatus struct {
	Name        string `json:"name"`
	CoolingDown bool   `json:"cooling_down"`
}

func (e *Engine) ExchangeStatus() []ExchangeStatus {
	out := make([]ExchangeStatus, 0, len(e.exchanges))
	for _, ex := range e.exchanges {
		out = append(out, ExchangeStatus{
			Name:        ex.Name(),
			CoolingDown: e.cooldown.Active(ex.Name()),
		})
	}
	return out
}

func (e *Engine) Strategies() []string { return e.registry.List() }

// ───────────────────────── cycle internals ─────────────────────────

func (e *Engine) symbols() []string {
	seen := make(map[string]bool, len(popularSymbols)+len(e.opts.Pairs))
	out := make([]string, 0, len(popularSymbols)+len(e.opts.Pairs))
	for _, s := range popularSymbols {
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range e.opts.Pairs {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// gather fans one GetTicker per (symbol, enabled exchange) pair out
// concurrently. A venue failure marks its cooldown and drops that venue from
// the cycle's results; it never fails or cancels sibling requests. The
// returned map only contains usable two-sided quotes.
func (e *Engine) gather(ctx context.Context, symbols []string) (map[string][]domain.ExchangePrice, map[string]domain.Coin, error) {
	coins := e.oracleSnapshot(ctx)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	prices := make(map[string][]domain.ExchangePrice, len(symbols))

	for _, symbol := range symbols {
		for _, ex := range e.exchanges {
			if e.cooldown.Active(ex.Name()) {
				e.logger.Debug("skipping exchange in cooldown",
					slog.String("exchange", ex.Name()),
					slog.String("symbol", symbol))
				continue
			}
			g.Go(func() error {
				t, err := ex.GetTicker(ctx, symbol)
				if err != nil {
					// A cancelled cycle is not a venue failure.
					if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					e.cooldown.Fail(ex.Name())
					e.logger.Warn("ticker fetch failed, venue cooling down",
						slog.String("exchange", ex.Name()),
						slog.String("symbol", symbol),
						slog.Any("error", err))
					return nil
				}
				if !t.HasBothSides() {
					return nil
				}
				mu.Lock()
				prices[symbol] = append(prices[symbol], domain.ExchangePrice{
					Exchange:  ex.Name(),
					Bid:       t.Bid,
					Ask:       t.Ask,
					Volume24h: t.Volume24h,
					Spread:    (t.Ask - t.Bid) / t.Ask * 100,
					Stale:     e.now().Sub(t.Timestamp) > e.opts.StaleAfter,
				})
				mu.Unlock()
				return nil
			})
		}
	}
	// Workers log-and-continue instead of returning errors, so Wait is only
	// a join point.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("arbitrage: scan cycle cancelled: %w", err)
	}
	return prices, coins, nil
}

// oracleSnapshot is best-effort market context keyed by base asset.
func (e *Engine) oracleSnapshot(ctx context.Context) map[string]domain.Coin {
	out := make(map[string]domain.Coin)
	if e.oracle == nil {
		return out
	}
	coins, err := e.oracle.GetTopCoins(ctx, 100)
	if err != nil {
		e.logger.Warn("oracle unavailable, scoring without market context",
			slog.Any("error", err))
		return out
	}
	for _, c := range coins {
		out[strings.ToUpper(c.Symbol)] = c
	}
	return out
}

// compose builds the unscored result for one symbol: the best distinct-venue
// bid/ask crossing, spread and estimated profit. Returns false when fewer
// than two venues responded or no distinct-venue pair exists.
func (e *Engine) compose(symbol string, prices []domain.ExchangePrice, coins map[string]domain.Coin) (domain.ScanResult, bool) {
	if len(prices) < 2 {
		return domain.ScanResult{}, false
	}

	// Best crossing over all distinct-venue pairs: buy where the ask is
	// lowest, sell where the bid is highest, never on the same venue.
	bestEdge, found := 0.0, false
	var buy, sell domain.ExchangePrice
	for _, pa := range prices {
		for _, pb := range prices {
			if pa.Exchange == pb.Exchange {
				continue
			}
			edge := pb.Bid - pa.Ask
			if !found || edge > bestEdge {
				bestEdge, found = edge, true
				buy, sell = pa, pb
			}
		}
	}
	if !found {
		return domain.ScanResult{}, false
	}

	spreadPct := (sell.Bid - buy.Ask) / buy.Ask * 100
	profit := e.opts.Notional*(spreadPct/100) - e.opts.Notional*(e.opts.RoundTripFeePercent/100)

	r := domain.ScanResult{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Prices:        prices,
		BestBuyVenue:  buy.Exchange,
		BestBuyPrice:  buy.Ask,
		BestSellVenue: sell.Exchange,
		BestSellPrice: sell.Bid,
		SpreadPercent: spreadPct,
		EstProfit:     profit,
		Timestamp:     e.now(),
	}
	base, _, err := domain.SplitSymbol(symbol)
	if err == nil {
		if c, ok := coins[base]; ok {
			r.Change24h = c.Change24h
			r.MarketCapRank = c.MarketCapRank
		}
	}
	return r, true
}

// scoreAll composes and scores every symbol under one strategy, applying the
// market-cap-rank and multi-venue bonuses before the final clamp.
func (e *Engine) scoreAll(strat Strategy, bases map[string][]domain.ExchangePrice, coins map[string]domain.Coin) []domain.ScanResult {
	out := make([]domain.ScanResult, 0, len(bases))
	for symbol, prices := range bases {
		r, ok := e.compose(symbol, prices, coins)
		if !ok {
			continue
		}
		r.Strategy = strat.Name()
		score := clamp(strat.Score(r))

		switch {
		case r.MarketCapRank > 0 && r.MarketCapRank <= 10:
			score += 10
		case r.MarketCapRank > 0 && r.MarketCapRank <= 50:
			score += 5
		}
		switch {
		case len(r.Prices) >= 4:
			score += 5
		case len(r.Prices) == 3:
			score += 2
		}

		r.Score = clamp(score)
		out = append(out, r)
	}
	return out
}

// rank sorts descending by score, truncates, and flags the top three.
func (e *Engine) rank(results []domain.ScanResult) []domain.ScanResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})
	if len(results) > e.opts.MaxResults {
		results = results[:e.opts.MaxResults]
	}
	for i := range results {
		results[i].Recommended = i < recommendedCount
	}
	return results
}

// publish replaces the snapshot and raises the opportunity event at most once.
func (e *Engine) publish(ranked []domain.ScanResult) {
	e.mu.Lock()
	e.latest = ranked
	e.mu.Unlock()

	if len(ranked) > 0 && ranked[0].Score >= e.opts.AlertThreshold && e.onOpportunity != nil {
		e.logger.Info("opportunity found",
			slog.String("symbol", ranked[0].Symbol),
			slog.Float64("score", ranked[0].Score),
			slog.Float64("spread_percent", ranked[0].SpreadPercent))
		e.onOpportunity(ranked[0])
	}
}
