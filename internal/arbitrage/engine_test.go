package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/arbscan/internal/domain"
)

// fakeExchange serves canned tickers and counts calls; only the ticker path
// matters to the engine.
type fakeExchange struct {
	name       string
	tickers    map[string]domain.Ticker
	err        error
	respectCtx bool // surface ctx.Err() the way a real HTTP adapter would
	calls      atomic.Int32
}

func (f *fakeExchange) Name() string { return f.name }

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	f.calls.Add(1)
	if f.respectCtx {
		if err := ctx.Err(); err != nil {
			return domain.Ticker{}, err
		}
	}
	if f.err != nil {
		return domain.Ticker{}, f.err
	}
	t, ok := f.tickers[symbol]
	if !ok {
		return domain.Ticker{}, domain.ErrNotFound
	}
	t.Symbol = symbol
	t.Exchange = f.name
	t.Timestamp = time.Now()
	return t, nil
}

func (f *fakeExchange) GetOrderBook(context.Context, string, int) (domain.OrderBook, error) {
	return domain.OrderBook{}, domain.ErrNotSupported
}
func (f *fakeExchange) GetBalance(context.Context) (domain.AccountBalance, error) {
	return domain.AccountBalance{}, domain.ErrNotSupported
}
func (f *fakeExchange) GetAssetBalance(context.Context, string) (domain.AssetBalance, error) {
	return domain.AssetBalance{}, domain.ErrNotSupported
}
func (f *fakeExchange) PlaceOrder(context.Context, domain.OrderRequest) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotSupported
}
func (f *fakeExchange) CancelOrder(context.Context, string, string) error { return domain.ErrNotSupported }
func (f *fakeExchange) GetOrder(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotSupported
}
func (f *fakeExchange) GetOpenOrders(context.Context, string) ([]domain.Order, error) {
	return nil, nil
}
func (f *fakeExchange) Connect(context.Context) error        { return nil }
func (f *fakeExchange) Disconnect() error                    { return nil }
func (f *fakeExchange) TestConnection(context.Context) error { return nil }

var _ domain.Exchange = (*fakeExchange)(nil)

func ticker(bid, ask float64) domain.Ticker {
	return domain.Ticker{Bid: bid, Ask: ask, Volume24h: 1000}
}

func btcOnly(bid, ask float64) map[string]domain.Ticker {
	return map[string]domain.Ticker{"BTC/USDT": ticker(bid, ask)}
}

func testEngine(t *testing.T, opts Options, exchanges ...domain.Exchange) *Engine {
	t.Helper()
	if opts.Pairs == nil {
		opts.Pairs = []string{}
	}
	e := NewEngine(exchanges, NewRegistry(), nil, opts,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return e
}

func TestSpreadComputation(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42020, 42030)}
	e := testEngine(t, Options{Notional: 1000, RoundTripFeePercent: 0.2}, a, b)

	r, err := e.AnalyzeCoin(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, "a", r.BestBuyVenue)
	assert.Equal(t, 42010.0, r.BestBuyPrice)
	assert.Equal(t, "b", r.BestSellVenue)
	assert.Equal(t, 42020.0, r.BestSellPrice)
	assert.InDelta(t, 0.0238, r.SpreadPercent, 0.0001)
	assert.InDelta(t, -1.76, r.EstProfit, 0.01)
}

func TestFewerThanTwoVenuesNoOpportunity(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010)}
	e := testEngine(t, Options{}, a)

	r, err := e.AnalyzeCoin(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestBuyAndSellVenuesAreDistinct(t *testing.T) {
	// Venue a has both the lowest ask and the highest bid; the crossing must
	// still straddle two venues.
	a := &fakeExchange{name: "a", tickers: btcOnly(42025, 42030)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42000, 42040)}
	e := testEngine(t, Options{}, a, b)

	r, err := e.AnalyzeCoin(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.NotEqual(t, r.BestBuyVenue, r.BestSellVenue)
}

func TestPartialFailureIsolationAndCooldown(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42020, 42030)}
	down := &fakeExchange{name: "down", err: errors.New("boom")}
	e := testEngine(t, Options{}, a, b, down)

	results, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	require.NotEmpty(t, results, "two healthy venues still produce results")
	for _, p := range results[0].Prices {
		assert.NotEqual(t, "down", p.Exchange)
	}

	// Second cycle inside the 60s window: the failed venue is skipped
	// entirely, no further requests reach it.
	failedCalls := down.calls.Load()
	_, err = e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	assert.Equal(t, failedCalls, down.calls.Load())

	// After the window lapses the venue is queried again.
	e.cooldown.now = func() time.Time { return time.Now().Add(2 * cooldownWindow) }
	_, err = e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	assert.Greater(t, down.calls.Load(), failedCalls)
}

func TestCancelledCyclePublishesNothing(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42020, 42030)}
	e := testEngine(t, Options{}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Scan(ctx, "arbitrage_best")
	require.Error(t, err)
	assert.Nil(t, e.GetBestOpportunity())
	assert.Empty(t, e.Latest())
}

func TestCancelledCycleDoesNotTriggerCooldown(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010), respectCtx: true}
	b := &fakeExchange{name: "b", tickers: btcOnly(42020, 42030), respectCtx: true}
	e := testEngine(t, Options{}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Scan(ctx, "arbitrage_best")
	require.Error(t, err)
	assert.False(t, e.cooldown.Active("a"), "cancellation must not cool a healthy venue down")
	assert.False(t, e.cooldown.Active("b"), "cancellation must not cool a healthy venue down")

	// The very next cycle sees both venues and produces results.
	results, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestUnknownStrategyRejected(t *testing.T) {
	e := testEngine(t, Options{})
	_, err := e.Scan(context.Background(), "nope")
	assert.Error(t, err)
}

func TestScanPublishesSnapshotReplace(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42020, 42030)}
	e := testEngine(t, Options{}, a, b)

	first, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	best := e.GetBestOpportunity()
	require.NotNil(t, best)
	assert.Equal(t, first[0].ID, best.ID)

	second, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	assert.NotEqual(t, first[0].ID, second[0].ID, "snapshots replaced wholesale")
	assert.Equal(t, second[0].ID, e.GetBestOpportunity().ID)
}

func TestOpportunityEventRaisedOncePerCycle(t *testing.T) {
	// 0.25% spread → arbitrage_best 75, above the default threshold of 70.
	a := &fakeExchange{name: "a", tickers: btcOnly(41890, 41900)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42005, 42015)}
	e := testEngine(t, Options{}, a, b)

	var events []domain.ScanResult
	e.OnOpportunity(func(r domain.ScanResult) { events = append(events, r) })

	_, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.GreaterOrEqual(t, events[0].Score, 70.0)
	assert.Equal(t, "BTC/USDT", events[0].Symbol)
}

func TestNoEventBelowThreshold(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42020, 42030)}
	e := testEngine(t, Options{}, a, b)

	called := false
	e.OnOpportunity(func(domain.ScanResult) { called = true })

	_, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestScanAllStrategiesDedupesBySymbol(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(41890, 41900)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42005, 42015)}
	e := testEngine(t, Options{}, a, b)

	results, err := e.ScanAllStrategies(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1, "one symbol, one result across all strategies")

	// The winning strategy is the one with the max score; with a 0.25%
	// spread that is arbitrage_best.
	assert.Equal(t, "arbitrage_best", results[0].Strategy)
}

func TestUserPairsExtendPopularList(t *testing.T) {
	tickers := map[string]domain.Ticker{
		"BTC/USDT": ticker(42000, 42010),
		"PEPE/THB": ticker(0.0004, 0.00041),
	}
	a := &fakeExchange{name: "a", tickers: tickers}
	b := &fakeExchange{name: "b", tickers: tickers}
	e := testEngine(t, Options{Pairs: []string{"pepe/thb"}}, a, b)

	results, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)

	symbols := make(map[string]bool)
	for _, r := range results {
		symbols[r.Symbol] = true
	}
	assert.True(t, symbols["PEPE/THB"], "user pair scanned alongside popular list")
	assert.True(t, symbols["BTC/USDT"])
}

type fakeOracle struct{ coins []domain.Coin }

func (f fakeOracle) GetTopCoins(context.Context, int) ([]domain.Coin, error) {
	return f.coins, nil
}

func TestOracleBonusesApplied(t *testing.T) {
	a := &fakeExchange{name: "a", tickers: btcOnly(42000, 42010)}
	b := &fakeExchange{name: "b", tickers: btcOnly(42020, 42030)}
	e := NewEngine([]domain.Exchange{a, b}, NewRegistry(),
		fakeOracle{coins: []domain.Coin{{Symbol: "BTC", Change24h: 2.5, MarketCapRank: 1}}},
		Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	plain := testEngine(t, Options{}, a, b)

	withOracle, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	without, err := plain.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)

	require.NotEmpty(t, withOracle)
	require.NotEmpty(t, without)
	assert.Equal(t, 1, withOracle[0].MarketCapRank)
	assert.InDelta(t, 2.5, withOracle[0].Change24h, 1e-9)
	assert.InDelta(t, 10, withOracle[0].Score-without[0].Score, 1e-9,
		"top-10 market cap adds +10")
}

func TestRankTruncatesAndRecommends(t *testing.T) {
	tickers := make(map[string]domain.Ticker)
	for _, s := range popularSymbols {
		tickers[s] = ticker(42000, 42010)
	}
	shifted := make(map[string]domain.Ticker)
	for _, s := range popularSymbols {
		shifted[s] = ticker(42020, 42030)
	}
	a := &fakeExchange{name: "a", tickers: tickers}
	b := &fakeExchange{name: "b", tickers: shifted}
	e := testEngine(t, Options{MaxResults: 5}, a, b)

	results, err := e.Scan(context.Background(), "arbitrage_best")
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i < 3, r.Recommended, r.Symbol)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
}
