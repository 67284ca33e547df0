package domain

import (
	"context"
	"time"
)

// ExchangeConfig binds one adapter instance to its venue. It is immutable
// once an adapter is constructed from it. Credentials are referenced by
// environment-variable name so secrets never travel through config files.
type ExchangeConfig struct {
	Name              string
	DisplayName       string
	BaseURL           string
	APIKeyEnv         string
	APISecretEnv      string
	PassphraseEnv     string // OKX/KuCoin only
	RateLimitPerSec   int
	Timeout           time.Duration
	MaxRetries        int
	TradingFeePercent float64
	Enabled           bool
}

// Exchange is the uniform capability contract every adapter implements. All
// operations honor context cancellation; blocking (rate-limiter waits, HTTP
// round-trips, simulated fill delays) is interruptible.
type Exchange interface {
	// Name returns the venue identifier, e.g. "binance".
	Name() string

	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)

	GetBalance(ctx context.Context) (AccountBalance, error)
	// GetAssetBalance returns one asset's balance. Adapters without a cheaper
	// venue-side call derive it from GetBalance.
	GetAssetBalance(ctx context.Context, asset string) (AssetBalance, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (Order, error)
	// GetOpenOrders lists open orders, all symbols when symbol is empty.
	// Best-effort: adapters that cannot implement it return an empty slice.
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)

	Connect(ctx context.Context) error
	Disconnect() error
	// TestConnection probes a cheap public endpoint.
	TestConnection(ctx context.Context) error
}
