package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSymbol(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		base, quote, err := SplitSymbol("btc/usdt")
		require.NoError(t, err)
		assert.Equal(t, "BTC", base)
		assert.Equal(t, "USDT", quote)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, sym := range []string{"BTCUSDT", "BTC/", "/USDT", "BTC/USDT/X", ""} {
			_, _, err := SplitSymbol(sym)
			assert.Error(t, err, "symbol %q", sym)
		}
	})
}

func TestTickerNormalizeCrossedBook(t *testing.T) {
	crossed := Ticker{Symbol: "BTC/USDT", Bid: 42020, Ask: 42010, BidQty: 1, AskQty: 2}
	got := crossed.Normalize()
	assert.Zero(t, got.Bid)
	assert.Zero(t, got.Ask)
	assert.Zero(t, got.BidQty)
	assert.Zero(t, got.AskQty)
	assert.False(t, got.HasBothSides())

	ok := Ticker{Symbol: "BTC/USDT", Bid: 42000, Ask: 42010}
	assert.Equal(t, ok, ok.Normalize())
	assert.True(t, ok.HasBothSides())

	// A one-sided book is left alone; it is unusable but not crossed.
	oneSided := Ticker{Symbol: "BTC/USDT", Ask: 42010}
	assert.Equal(t, oneSided, oneSided.Normalize())
	assert.False(t, oneSided.HasBothSides())
}

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := []OrderStatus{
		OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected,
		OrderStatusExpired, OrderStatusError,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "status %s", s)
	}
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusOpen, OrderStatusPartiallyFilled} {
		assert.False(t, s.IsTerminal(), "status %s", s)
	}
}

func TestCredentialsErrorUnwraps(t *testing.T) {
	err := &CredentialsError{Exchange: "binance", EnvVars: []string{"BINANCE_API_KEY", "BINANCE_API_SECRET"}}
	assert.True(t, errors.Is(err, ErrCredentialsMissing))
	assert.Contains(t, err.Error(), "BINANCE_API_KEY")
	assert.Contains(t, err.Error(), "BINANCE_API_SECRET")
}

func TestTransportErrorUnwraps(t *testing.T) {
	err := &TransportError{Endpoint: "/api/v3/ticker", Attempts: 4, Last: errors.New("connection refused")}
	assert.True(t, errors.Is(err, ErrTransportExhausted))
	assert.Contains(t, err.Error(), "/api/v3/ticker")
	assert.Contains(t, err.Error(), "4 attempt")
}

func TestAssetBalanceLocked(t *testing.T) {
	b := AssetBalance{Asset: "USDT", Available: 400, Total: 1000}
	assert.Equal(t, 600.0, b.Locked())
}
