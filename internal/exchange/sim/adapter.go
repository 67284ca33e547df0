// Package sim is a self-contained, non-networked exchange adapter backed by a
// synthetic price, balance and order model. It implements the same contract as
// the live adapters and is what the factory hands out when live trading is
// disabled.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coinpulse/arbscan/internal/domain"
)

// Default starting prices for the popular coins the scanner watches. Unknown
// bases fall back to defaultBasePrice so an unrecognized pair still trades.
var basePrices = map[string]float64{
	"BTC":  42000,
	"ETH":  2500,
	"BNB":  310,
	"SOL":  98,
	"XRP":  0.52,
	"ADA":  0.45,
	"DOGE": 0.08,
	"DOT":  6.5,
	"LINK": 14.2,
	"AVAX": 35,
}

const (
	defaultBasePrice = 100.0
	walkVolatility   = 0.001  // ±0.1% per ticker read
	spreadFloor      = 0.0005 // 0.05%
	spreadCeil       = 0.001  // 0.1%
)

type assetState struct {
	total     float64
	available float64
}

// Adapter is one simulated exchange account. All mutable state is guarded by
// a single mutex; nothing network-like happens while it is held.
type Adapter struct {
	cfg       domain.ExchangeConfig
	logger    *slog.Logger
	feePct    float64 // per-side fee, e.g. 0.1 for 0.1%
	biasPct   float64 // deterministic base-price skew for this venue
	fillDelay time.Duration
	now       func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	prices   map[string]float64 // base asset → current synthetic price
	balances map[string]*assetState
	open     map[string]domain.Order
	history  []domain.Order
}

// Option tweaks a simulated adapter at construction time.
type Option func(*Adapter)

// WithPriceBias skews every base price by pct percent, so different simulated
// venues disagree deterministically and spreads exist to find.
func WithPriceBias(pct float64) Option {
	return func(a *Adapter) { a.biasPct = pct }
}

// WithSeed makes the random walk reproducible.
func WithSeed(seed int64) Option {
	return func(a *Adapter) { a.rng = rand.New(rand.NewSource(seed)) }
}

// WithFillDelay overrides the simulated execution latency.
func WithFillDelay(d time.Duration) Option {
	return func(a *Adapter) { a.fillDelay = d }
}

func New(cfg domain.ExchangeConfig, logger *slog.Logger, opts ...Option) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "simulation"
	}
	a := &Adapter{
		cfg:       cfg,
		logger:    logger.With(slog.String("exchange", cfg.Name), slog.Bool("simulated", true)),
		feePct:    cfg.TradingFeePercent,
		fillDelay: 50 * time.Millisecond,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		prices:    make(map[string]float64),
		open:      make(map[string]domain.Order),
		balances: map[string]*assetState{
			"USDT": {total: 10000, available: 10000},
			"THB":  {total: 350000, available: 350000},
			"BTC":  {total: 0.5, available: 0.5},
			"ETH":  {total: 5, available: 5},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	base, _, err := domain.SplitSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	mid := a.walk(base)
	spread := spreadFloor + a.rng.Float64()*(spreadCeil-spreadFloor)
	half := mid * spread / 2

	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  a.cfg.Name,
		Bid:       mid - half,
		Ask:       mid + half,
		BidQty:    1 + a.rng.Float64()*10,
		AskQty:    1 + a.rng.Float64()*10,
		Last:      mid,
		Volume24h: 1000 + a.rng.Float64()*9000,
		Timestamp: a.now(),
	}, nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	t, err := a.GetTicker(ctx, symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}
	if depth <= 0 {
		depth = 10
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	book := domain.OrderBook{Symbol: symbol, Exchange: a.cfg.Name, Timestamp: t.Timestamp}
	step := t.Bid * 0.0002
	for i := 0; i < depth; i++ {
		book.Bids = append(book.Bids, domain.OrderBookEntry{
			Price:    t.Bid - float64(i)*step,
			Quantity: 0.1 + a.rng.Float64()*5,
		})
		book.Asks = append(book.Asks, domain.OrderBookEntry{
			Price:    t.Ask + float64(i)*step,
			Quantity: 0.1 + a.rng.Float64()*5,
		})
	}
	return book, nil
}

func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := domain.AccountBalance{
		Exchange:  a.cfg.Name,
		Assets:    make(map[string]domain.AssetBalance, len(a.balances)),
		Timestamp: a.now(),
	}
	for asset, s := range a.balances {
		out.Assets[asset] = domain.AssetBalance{Asset: asset, Available: s.available, Total: s.total}
	}
	return out, nil
}

func (a *Adapter) GetAssetBalance(ctx context.Context, asset string) (domain.AssetBalance, error) {
	all, err := a.GetBalance(ctx)
	if err != nil {
		return domain.AssetBalance{}, err
	}
	return all.Get(strings.ToUpper(asset)), nil
}

// PlaceOrder simulates execution latency, then fills or parks the order.
// Market orders, and limit orders whose price crosses the current synthetic
// book, fill immediately at the opposite-side price; other limit orders stay
// open with their funds reserved. Both balance legs of a fill move under one
// lock scope, and an insufficient balance mutates nothing.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	base, quote, err := domain.SplitSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	if req.Quantity <= 0 {
		return domain.Order{}, fmt.Errorf("sim: place order: quantity must be positive")
	}
	if req.Type == domain.OrderTypeLimit && req.Price <= 0 {
		return domain.Order{}, fmt.Errorf("sim: place order: limit orders need a price")
	}

	// Execution latency happens before any state is touched, so the lock is
	// never held across the delay.
	select {
	case <-ctx.Done():
		return domain.Order{}, ctx.Err()
	case <-time.After(a.fillDelay):
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	mid := a.walk(base)
	spread := spreadFloor + a.rng.Float64()*(spreadCeil-spreadFloor)
	bid, ask := mid*(1-spread/2), mid*(1+spread/2)

	now := a.now()
	order := domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Exchange:      a.cfg.Name,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	fillPrice := ask
	if req.Side == domain.OrderSideSell {
		fillPrice = bid
	}
	crosses := req.Type == domain.OrderTypeMarket ||
		(req.Side == domain.OrderSideBuy && req.Price >= ask) ||
		(req.Side == domain.OrderSideSell && req.Price <= bid)

	if crosses {
		if err := a.fill(&order, base, quote, fillPrice); err != nil {
			return domain.Order{}, err
		}
		a.history = append(a.history, order)
		return order, nil
	}

	// Non-crossing limit order: park it and reserve the funds it would spend.
	if err := a.reserve(&order, base, quote); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatusOpen
	a.open[order.ID] = order
	return order, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	order, ok := a.open[orderID]
	if !ok {
		return fmt.Errorf("sim: cancel order %s: %w", orderID, domain.ErrNotFound)
	}
	base, quote, err := domain.SplitSymbol(order.Symbol)
	if err != nil {
		return err
	}

	a.release(order, base, quote)
	delete(a.open, orderID)
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = a.now()
	a.history = append(a.history, order)
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if o, ok := a.open[orderID]; ok {
		return o, nil
	}
	for i := len(a.history) - 1; i >= 0; i-- {
		if a.history[i].ID == orderID {
			return a.history[i], nil
		}
	}
	return domain.Order{}, fmt.Errorf("sim: get order %s: %w", orderID, domain.ErrNotFound)
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.Order, 0, len(a.open))
	for _, o := range a.open {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (a *Adapter) Connect(ctx context.Context) error { return nil }

func (a *Adapter) Disconnect() error { return nil }

func (a *Adapter) TestConnection(ctx context.Context) error { return nil }

// ───────────────────────── internal ─────────────────────────

// walk advances the base asset's synthetic price one bounded random step and
// returns the new value. Caller holds a.mu.
func (a *Adapter) walk(base string) float64 {
	p, ok := a.prices[base]
	if !ok {
		p, ok = basePrices[base]
		if !ok {
			p = defaultBasePrice
		}
		p *= 1 + a.biasPct/100
	}
	p *= 1 + (a.rng.Float64()*2-1)*walkVolatility
	a.prices[base] = p
	return p
}

// fill executes both legs atomically: validates funds first, then moves both
// balances, so a failure leaves nothing changed. Caller holds a.mu.
func (a *Adapter) fill(order *domain.Order, base, quote string, price float64) error {
	fee := a.feePct / 100
	if order.Side == domain.OrderSideBuy {
		cost := order.Quantity * price * (1 + fee)
		q := a.asset(quote)
		if q.available < cost {
			return fmt.Errorf("sim: buy %s needs %.8f %s, have %.8f: %w",
				order.Symbol, cost, quote, q.available, domain.ErrInsufficientBalance)
		}
		q.available -= cost
		q.total -= cost
		b := a.asset(base)
		b.available += order.Quantity
		b.total += order.Quantity
		order.Fee = order.Quantity * price * fee
		order.FeeCurrency = quote
	} else {
		b := a.asset(base)
		if b.available < order.Quantity {
			return fmt.Errorf("sim: sell %s needs %.8f %s, have %.8f: %w",
				order.Symbol, order.Quantity, base, b.available, domain.ErrInsufficientBalance)
		}
		b.available -= order.Quantity
		b.total -= order.Quantity
		proceeds := order.Quantity * price * (1 - fee)
		q := a.asset(quote)
		q.available += proceeds
		q.total += proceeds
		order.Fee = order.Quantity * price * fee
		order.FeeCurrency = quote
	}

	order.Status = domain.OrderStatusFilled
	order.FilledQty = order.Quantity
	order.AvgPrice = price
	order.UpdatedAt = a.now()
	return nil
}

// reserve locks the funds a parked limit order would consume. Caller holds a.mu.
func (a *Adapter) reserve(order *domain.Order, base, quote string) error {
	if order.Side == domain.OrderSideBuy {
		cost := order.Quantity * order.Price * (1 + a.feePct/100)
		q := a.asset(quote)
		if q.available < cost {
			return fmt.Errorf("sim: buy %s needs %.8f %s, have %.8f: %w",
				order.Symbol, cost, quote, q.available, domain.ErrInsufficientBalance)
		}
		q.available -= cost
		return nil
	}
	b := a.asset(base)
	if b.available < order.Quantity {
		return fmt.Errorf("sim: sell %s needs %.8f %s, have %.8f: %w",
			order.Symbol, order.Quantity, base, b.available, domain.ErrInsufficientBalance)
	}
	b.available -= order.Quantity
	return nil
}

// release undoes a reservation on cancellation. Caller holds a.mu.
func (a *Adapter) release(order domain.Order, base, quote string) {
	if order.Side == domain.OrderSideBuy {
		a.asset(quote).available += order.Quantity * order.Price * (1 + a.feePct/100)
		return
	}
	a.asset(base).available += order.Quantity
}

func (a *Adapter) asset(name string) *assetState {
	s, ok := a.balances[name]
	if !ok {
		s = &assetState{}
		a.balances[name] = s
	}
	return s
}
