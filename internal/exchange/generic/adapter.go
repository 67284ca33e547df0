// Package generic is the placeholder adapter behind unrecognized exchange
// names. It exists so a misconfigured venue degrades scan coverage instead of
// crashing the caller: every read serves clearly synthetic data and logs
// loudly, and every trading operation is refused as unsupported.
package generic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coinpulse/arbscan/internal/domain"
)

type Adapter struct {
	cfg    domain.ExchangeConfig
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg domain.ExchangeConfig, logger *slog.Logger) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "generic"
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger.With(slog.String("exchange", cfg.Name), slog.Bool("placeholder", true)),
		now:    time.Now,
	}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	a.warn("get ticker", symbol)
	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  a.cfg.Name,
		Bid:       99.9,
		Ask:       100.1,
		Last:      100,
		Timestamp: a.now(),
	}, nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	a.warn("get order book", symbol)
	return domain.OrderBook{
		Symbol:    symbol,
		Exchange:  a.cfg.Name,
		Bids:      []domain.OrderBookEntry{{Price: 99.9, Quantity: 1}},
		Asks:      []domain.OrderBookEntry{{Price: 100.1, Quantity: 1}},
		Timestamp: a.now(),
	}, nil
}

func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	a.warn("get balance", "")
	return domain.AccountBalance{
		Exchange:  a.cfg.Name,
		Assets:    map[string]domain.AssetBalance{},
		Timestamp: a.now(),
	}, nil
}

func (a *Adapter) GetAssetBalance(ctx context.Context, asset string) (domain.AssetBalance, error) {
	a.warn("get asset balance", asset)
	return domain.AssetBalance{Asset: asset}, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	return domain.Order{}, fmt.Errorf("%s: place order: %w", a.cfg.Name, domain.ErrNotSupported)
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return fmt.Errorf("%s: cancel order: %w", a.cfg.Name, domain.ErrNotSupported)
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	return domain.Order{}, fmt.Errorf("%s: get order: %w", a.cfg.Name, domain.ErrNotSupported)
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	a.warn("get open orders", symbol)
	return []domain.Order{}, nil
}

func (a *Adapter) Connect(ctx context.Context) error { return nil }

func (a *Adapter) Disconnect() error { return nil }

func (a *Adapter) TestConnection(ctx context.Context) error { return nil }

func (a *Adapter) warn(op, detail string) {
	a.logger.Warn("placeholder adapter serving synthetic data",
		slog.String("op", op),
		slog.String("detail", detail))
}
