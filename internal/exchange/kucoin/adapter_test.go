package kucoin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/arbscan/internal/domain"
)

func testAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New(domain.ExchangeConfig{
		Name:            name,
		BaseURL:         srv.URL,
		APIKeyEnv:       "TEST_KUCOIN_KEY",
		APISecretEnv:    "TEST_KUCOIN_SECRET",
		PassphraseEnv:   "TEST_KUCOIN_PASSPHRASE",
		RateLimitPerSec: 50,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return a
}

func TestWireSymbol(t *testing.T) {
	wire, err := WireSymbol("sol/usdt")
	require.NoError(t, err)
	assert.Equal(t, "SOL-USDT", wire)
}

func TestGetTickerMissingQuantitiesDefaultZero(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/market/stats", r.URL.Path)
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"code":"200000","data":{
			"symbol":"BTC-USDT","buy":"42015","sell":"42022","last":"42020","vol":"321.7"
		}}`))
	}))

	tk, err := a.GetTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 42015.0, tk.Bid)
	assert.Equal(t, 42022.0, tk.Ask)
	assert.Zero(t, tk.BidQty, "stats endpoint has no book quantities")
	assert.Equal(t, 321.7, tk.Volume24h)
}

func TestSignedHeadersUseKeyVersion2(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("KC-API-KEY"))
		assert.Equal(t, "2", r.Header.Get("KC-API-KEY-VERSION"))
		assert.NotEmpty(t, r.Header.Get("KC-API-SIGN"))
		assert.NotEmpty(t, r.Header.Get("KC-API-PASSPHRASE"))
		assert.NotEqual(t, "p", r.Header.Get("KC-API-PASSPHRASE"),
			"version 2 never sends the plaintext passphrase")
		w.Write([]byte(`{"code":"200000","data":[
			{"currency":"USDT","balance":"1000","available":"800"},
			{"currency":"BTC","balance":"0","available":"0"}
		]}`))
	}))
	a.apiKey, a.apiSecret, a.passphrase = "k", "s", "p"

	bal, err := a.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 800.0, bal.Get("USDT").Available)
	assert.NotContains(t, bal.Assets, "BTC", "zero balances are dropped")
}

func TestCredentialsFailFast(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTC/USDT", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: 1,
	})
	assert.ErrorIs(t, err, domain.ErrCredentialsMissing)
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		isActive, cancelExist bool
		filled, requested     float64
		want                  domain.OrderStatus
	}{
		{true, false, 0, 1, domain.OrderStatusOpen},
		{true, false, 0.5, 1, domain.OrderStatusPartiallyFilled},
		{false, true, 0, 1, domain.OrderStatusCancelled},
		{false, false, 1, 1, domain.OrderStatusFilled},
		{false, false, 0.5, 1, domain.OrderStatusPartiallyFilled},
		{false, false, 0, 0, domain.OrderStatusError},
	}
	for _, c := range cases {
		got := mapStatus(c.isActive, c.cancelExist, c.filled, c.requested)
		assert.Equal(t, c.want, got, "active=%v cancel=%v filled=%v", c.isActive, c.cancelExist, c.filled)
	}
}

func TestGetOrderParsesFills(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"200000","data":{
			"id":"ord-1","clientOid":"c-1","symbol":"BTC-USDT","side":"buy","type":"limit",
			"size":"2","dealSize":"2","dealFunds":"84010","price":"42010","fee":"0.84",
			"feeCurrency":"USDT","isActive":false,"cancelExist":false,"createdAt":1700000000000
		}}`))
	}))
	a.apiKey, a.apiSecret, a.passphrase = "k", "s", "p"

	o, err := a.GetOrder(context.Background(), "BTC/USDT", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.InDelta(t, 42005.0, o.AvgPrice, 1e-9)
	assert.Equal(t, "USDT", o.FeeCurrency)
}
