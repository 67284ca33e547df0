package bitkub

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
		APIKeyEnv:       "TEST_BITKUB_KEY",
		APISecretEnv:    "TEST_BITKUB_SECRET",
		RateLimitPerSec: 50,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return a
}

func withCreds(t *testing.T, a *Adapter) *Adapter {
	t.Helper()
	a.apiKey = "test-key"
	a.apiSecret = "test-secret"
	return a
}

func TestWireSymbolQuoteFirst(t *testing.T) {
	wire, err := WireSymbol("BTC/THB")
	require.NoError(t, err)
	assert.Equal(t, "THB_BTC", wire)

	wire, err = WireSymbol("ETH/THB")
	require.NoError(t, err)
	assert.Equal(t, "THB_ETH", wire)

	_, err = WireSymbol("BTCTHB")
	assert.Error(t, err)
}

func TestGetTicker(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market/ticker", r.URL.Path)
		assert.Equal(t, "THB_BTC", r.URL.Query().Get("sym"))
		w.Write([]byte(`{"THB_BTC":{
			"last":1420000,"highestBid":1419500,"lowestAsk":1420500,"baseVolume":12.5
		}}`))
	}))

	tk, err := a.GetTicker(context.Background(), "BTC/THB")
	require.NoError(t, err)
	assert.Equal(t, "BTC/THB", tk.Symbol)
	assert.Equal(t, name, tk.Exchange)
	assert.Equal(t, 1419500.0, tk.Bid)
	assert.Equal(t, 1420500.0, tk.Ask)
	assert.Equal(t, 1420000.0, tk.Last)
	assert.Equal(t, 12.5, tk.Volume24h)
}

func TestGetTickerSymbolMissing(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	_, err := a.GetTicker(context.Background(), "BTC/THB")
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, name, perr.Exchange)
}

func TestGetOrderBook(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market/depth", r.URL.Path)
		assert.Equal(t, "THB_BTC", r.URL.Query().Get("sym"))
		assert.Equal(t, "5", r.URL.Query().Get("lmt"))
		w.Write([]byte(`{
			"bids":[[1419500,0.5],[1419000,1.2]],
			"asks":[[1420500,0.3]]
		}`))
	}))

	ob, err := a.GetOrderBook(context.Background(), "BTC/THB", 5)
	require.NoError(t, err)
	require.Len(t, ob.Bids, 2)
	require.Len(t, ob.Asks, 1)
	assert.Equal(t, 1419500.0, ob.BestBid().Price)
	assert.Equal(t, 0.5, ob.BestBid().Quantity)
	assert.Equal(t, 1420500.0, ob.BestAsk().Price)
}

func TestSignedFailsFastWithoutCredentials(t *testing.T) {
	called := false
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := a.GetBalance(context.Background())
	var cerr *domain.CredentialsError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.EnvVars, "TEST_BITKUB_KEY")
	assert.Contains(t, cerr.EnvVars, "TEST_BITKUB_SECRET")
	assert.False(t, called, "no network call without credentials")
}

func TestGetBalanceSignsRawBody(t *testing.T) {
	a := withCreds(t, testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/market/balances", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-BTK-APIKEY"))
		assert.Equal(t, "1700000000000", r.Header.Get("X-BTK-TIMESTAMP"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"ts":1700000000000}`, string(body))
		// HMAC-SHA256("test-secret", body)
		assert.Equal(t,
			"0590c7c083b2341202beeacad522b63893c5f28b332b082859e98c435e7a2f22",
			r.Header.Get("X-BTK-SIGN"))

		w.Write([]byte(`{"error":0,"result":{
			"THB":{"available":50000,"reserved":1000},
			"BTC":{"available":0.75,"reserved":0},
			"ETH":{"available":0,"reserved":0}
		}}`))
	})))

	bal, err := a.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Len(t, bal.Assets, 2, "zero balances dropped")

	thb := bal.Get("THB")
	assert.Equal(t, 50000.0, thb.Available)
	assert.Equal(t, 51000.0, thb.Total)
	assert.Equal(t, 1000.0, thb.Locked())
}

func TestEnvelopeErrorBecomesAPIError(t *testing.T) {
	a := withCreds(t, testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":3,"result":null}`))
	})))

	_, err := a.GetBalance(context.Background())
	var aerr *domain.APIError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "3", aerr.Code)
}

func TestPlaceOrderRoutesBySide(t *testing.T) {
	t.Run("limit buy spends quote on place-bid", func(t *testing.T) {
		a := withCreds(t, testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/market/place-bid", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"sym":"THB_BTC","amt":710000,"rat":1420000,"typ":"limit","ts":1700000000000}`, string(body))
			w.Write([]byte(`{"error":0,"result":{"id":"123","typ":"limit","amt":710000,"rat":1420000,"fee":1775}}`))
		})))

		o, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
			Symbol:   "BTC/THB",
			Side:     domain.OrderSideBuy,
			Type:     domain.OrderTypeLimit,
			Quantity: 0.5,
			Price:    1420000,
		})
		require.NoError(t, err)
		assert.Equal(t, "123", o.ID)
		assert.Equal(t, domain.OrderStatusOpen, o.Status)
		assert.Equal(t, 0.5, o.Quantity)
		assert.Equal(t, "BTC", o.FeeCurrency)
	})

	t.Run("sell goes to place-ask in base units", func(t *testing.T) {
		a := withCreds(t, testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/market/place-ask", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"sym":"THB_BTC","amt":0.5,"rat":1420000,"typ":"limit","ts":1700000000000}`, string(body))
			w.Write([]byte(`{"error":0,"result":{"id":457,"typ":"limit","amt":0.5,"rat":1420000}}`))
		})))

		o, err := a.PlaceOrder(context.Background(), domain.OrderRequest{
			Symbol:   "BTC/THB",
			Side:     domain.OrderSideSell,
			Type:     domain.OrderTypeLimit,
			Quantity: 0.5,
			Price:    1420000,
		})
		require.NoError(t, err)
		assert.Equal(t, "457", o.ID)
		assert.Equal(t, "THB", o.FeeCurrency)
	})
}

func TestGetOrderMapsStatus(t *testing.T) {
	a := withCreds(t, testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/market/order-info", r.URL.Path)
		w.Write([]byte(`{"error":0,"result":{
			"id":"888","side":"buy","status":"partially_filled",
			"amount":1.0,"rate":1420000,"fee":500,"filled":0.4
		}}`))
	})))

	o, err := a.GetOrder(context.Background(), "BTC/THB", "888")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, o.Status)
	assert.Equal(t, 0.4, o.FilledQty)
	assert.Equal(t, domain.OrderSideBuy, o.Side)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"unfilled":         domain.OrderStatusOpen,
		"partially_filled": domain.OrderStatusPartiallyFilled,
		"filled":           domain.OrderStatusFilled,
		"cancelled":        domain.OrderStatusCancelled,
		"whatever":         domain.OrderStatusError,
	}
	for in, want := range cases {
		assert.Equal(t, want, mapStatus(in), in)
	}
}

func TestCancelOrder(t *testing.T) {
	a := withCreds(t, testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/market/cancel-order", r.URL.Path)
		w.Write([]byte(`{"error":0,"result":null}`))
	})))

	require.NoError(t, a.CancelOrder(context.Background(), "BTC/THB", "888"))
}

func TestGetOpenOrdersReturnsEmpty(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	orders, err := a.GetOpenOrders(context.Background(), "BTC/THB")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestBadSymbolRejectedBeforeNetwork(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := a.GetTicker(context.Background(), "nonsense")
	assert.Error(t, err)
}
