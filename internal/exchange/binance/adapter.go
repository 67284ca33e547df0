// Package binance implements the exchange adapter for the Binance spot REST
// API (/api/v3). Signed endpoints use the sorted-query HMAC-SHA256 scheme
// with the signature appended as a query parameter and the API key in
// X-MBX-APIKEY.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coinpulse/arbscan/internal/domain"
	"github.com/coinpulse/arbscan/internal/sign"
	"github.com/coinpulse/arbscan/internal/transport"
)

const name = "binance"

// Adapter is the Binance spot adapter. One instance owns its HTTP client and
// rate limiter exclusively.
type Adapter struct {
	cfg    domain.ExchangeConfig
	http   *transport.Client
	logger *slog.Logger
	now    func() time.Time

	apiKey    string
	apiSecret string
}

// New builds an adapter from cfg. Credentials are resolved from the
// environment variables cfg names; they may be absent, in which case only
// public endpoints work and authenticated calls fail fast.
func New(cfg domain.ExchangeConfig, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	return &Adapter{
		cfg: cfg,
		http: transport.New(transport.Config{
			RateLimitPerSec: cfg.RateLimitPerSec,
			MaxRetries:      cfg.MaxRetries,
			Timeout:         cfg.Timeout,
		}, logger),
		logger:    logger.With(slog.String("exchange", name)),
		now:       time.Now,
		apiKey:    os.Getenv(cfg.APIKeyEnv),
		apiSecret: os.Getenv(cfg.APISecretEnv),
	}
}

func (a *Adapter) Name() string { return name }

// WireSymbol maps canonical BASE/QUOTE to Binance's concatenated form,
// e.g. BTC/USDT → BTCUSDT.
func WireSymbol(symbol string) (string, error) {
	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

// GetTicker fetches the 24h rolling ticker, which carries top-of-book,
// last price, and volume in one call.
func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	body, err := a.public(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {wire}})
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: get ticker %s: %w", symbol, err)
	}

	var raw struct {
		Symbol    string `json:"symbol"`
		BidPrice  string `json:"bidPrice"`
		BidQty    string `json:"bidQty"`
		AskPrice  string `json:"askPrice"`
		AskQty    string `json:"askQty"`
		LastPrice string `json:"lastPrice"`
		Volume    string `json:"volume"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(body), Err: err}
	}
	if raw.Symbol == "" {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(body), Err: fmt.Errorf("missing symbol")}
	}

	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  name,
		Bid:       toFloat(raw.BidPrice),
		BidQty:    toFloat(raw.BidQty),
		Ask:       toFloat(raw.AskPrice),
		AskQty:    toFloat(raw.AskQty),
		Last:      toFloat(raw.LastPrice),
		Volume24h: toFloat(raw.Volume),
		Timestamp: a.now(),
	}.Normalize(), nil
}

// GetOrderBook fetches depth; Binance caps limit at 5000.
func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}
	if depth <= 0 {
		depth = 20
	}

	body, err := a.public(ctx, "/api/v3/depth", url.Values{
		"symbol": {wire},
		"limit":  {strconv.Itoa(depth)},
	})
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("binance: get order book %s: %w", symbol, err)
	}

	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OrderBook{}, &domain.ParseError{Exchange: name, Op: "get order book", Raw: string(body), Err: err}
	}

	return domain.OrderBook{
		Symbol:    symbol,
		Exchange:  name,
		Bids:      toEntries(raw.Bids),
		Asks:      toEntries(raw.Asks),
		Timestamp: a.now(),
	}, nil
}

// GetBalance fetches the signed account snapshot.
func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	body, err := a.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("binance: get balance: %w", err)
	}

	var raw struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.AccountBalance{}, &domain.ParseError{Exchange: name, Op: "get balance", Raw: string(body), Err: err}
	}

	out := domain.AccountBalance{Exchange: name, Assets: make(map[string]domain.AssetBalance), Timestamp: a.now()}
	for _, b := range raw.Balances {
		free := toFloat(b.Free)
		locked := toFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		asset := strings.ToUpper(b.Asset)
		out.Assets[asset] = domain.AssetBalance{Asset: asset, Available: free, Total: free + locked}
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

// PlaceOrder submits a signed spot order.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	wire, err := WireSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	params := url.Values{
		"symbol":           {wire},
		"side":             {strings.ToUpper(string(req.Side))},
		"type":             {strings.ToUpper(string(req.Type))},
		"quantity":         {trimFloat(req.Quantity)},
		"newClientOrderId": {clientID},
	}
	if req.Type == domain.OrderTypeLimit {
		params.Set("price", trimFloat(req.Price))
		params.Set("timeInForce", "GTC")
	}

	body, err := a.signed(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: place order: %w", err)
	}
	return a.parseOrder(body, "place order", req.Symbol)
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return err
	}
	_, err = a.signed(ctx, http.MethodDelete, "/api/v3/order", url.Values{
		"symbol":  {wire},
		"orderId": {orderID},
	})
	if err != nil {
		return fmt.Errorf("binance: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	body, err := a.signed(ctx, http.MethodGet, "/api/v3/order", url.Values{
		"symbol":  {wire},
		"orderId": {orderID},
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: get order %s: %w", orderID, err)
	}
	return a.parseOrder(body, "get order", symbol)
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{}
	if symbol != "" {
		wire, err := WireSymbol(symbol)
		if err != nil {
			return nil, err
		}
		params.Set("symbol", wire)
	}

	body, err := a.signed(ctx, http.MethodGet, "/api/v3/openOrders", params)
	if err != nil {
		// Best-effort bulk call: log and degrade to empty.
		a.logger.Warn("get open orders failed", slog.String("error", err.Error()))
		return []domain.Order{}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &domain.ParseError{Exchange: name, Op: "get open orders", Raw: string(body), Err: err}
	}
	orders := make([]domain.Order, 0, len(raws))
	for _, r := range raws {
		o, err := a.parseOrder(r, "get open orders", symbol)
		if err != nil {
			a.logger.Warn("skipping unparseable open order", slog.String("error", err.Error()))
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (a *Adapter) Connect(ctx context.Context) error { return a.TestConnection(ctx) }

func (a *Adapter) Disconnect() error { return nil }

func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.public(ctx, "/api/v3/ping", nil)
	if err != nil {
		return fmt.Errorf("binance: test connection: %w", err)
	}
	return nil
}

// ───────────────────────── internal ─────────────────────────

// mapStatus maps Binance's order status vocabulary onto the canonical state
// machine. Unknown strings map to Error, never Pending.
func mapStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "PENDING_CANCEL":
		return domain.OrderStatusOpen
	case "PARTIALLY_FILLED":
		return domain.OrderStatusPartiallyFilled
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED":
		return domain.OrderStatusCancelled
	case "REJECTED":
		return domain.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusError
	}
}

func (a *Adapter) parseOrder(body []byte, op, symbol string) (domain.Order, error) {
	var raw struct {
		OrderID             json.Number `json:"orderId"`
		ClientOrderID       string      `json:"clientOrderId"`
		Symbol              string      `json:"symbol"`
		Side                string      `json:"side"`
		Type                string      `json:"type"`
		Status              string      `json:"status"`
		OrigQty             string      `json:"origQty"`
		ExecutedQty         string      `json:"executedQty"`
		Price               string      `json:"price"`
		CummulativeQuoteQty string      `json:"cummulativeQuoteQty"`
		TransactTime        int64       `json:"transactTime"`
		Time                int64       `json:"time"`
		UpdateTime          int64       `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: op, Raw: string(body), Err: err}
	}
	if raw.OrderID.String() == "" || raw.Symbol == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: op, Raw: string(body), Err: fmt.Errorf("missing order id or symbol")}
	}

	filled := toFloat(raw.ExecutedQty)
	var avg float64
	if filled > 0 {
		avg = toFloat(raw.CummulativeQuoteQty) / filled
	}
	created := raw.Time
	if created == 0 {
		created = raw.TransactTime
	}
	updated := raw.UpdateTime
	if updated == 0 {
		updated = created
	}

	return domain.Order{
		ID:            raw.OrderID.String(),
		ClientOrderID: raw.ClientOrderID,
		Exchange:      name,
		Symbol:        symbol,
		Side:          domain.OrderSide(strings.ToLower(raw.Side)),
		Type:          domain.OrderType(strings.ToLower(raw.Type)),
		Status:        mapStatus(raw.Status),
		Quantity:      toFloat(raw.OrigQty),
		FilledQty:     filled,
		Price:         toFloat(raw.Price),
		AvgPrice:      avg,
		CreatedAt:     time.UnixMilli(created),
		UpdatedAt:     time.UnixMilli(updated),
	}, nil
}

// public performs an unsigned GET.
func (a *Adapter) public(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := a.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	resp, err := a.http.Do(ctx, transport.Request{Method: http.MethodGet, URL: u})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, apiError(resp)
	}
	return resp.Body, nil
}

// signed performs a request with the timestamped, signed query string. It
// fails fast with a CredentialsError before touching the network when key or
// secret is unset.
func (a *Adapter) signed(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if a.apiKey == "" || a.apiSecret == "" {
		return nil, &domain.CredentialsError{Exchange: name, EnvVars: []string{a.cfg.APIKeyEnv, a.cfg.APISecretEnv}}
	}

	params.Set("timestamp", strconv.FormatInt(a.now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode() // url.Values encodes keys sorted
	query += "&signature=" + sign.Binance(a.apiSecret, query)

	header := http.Header{}
	header.Set("X-MBX-APIKEY", a.apiKey)

	resp, err := a.http.Do(ctx, transport.Request{
		Method: method,
		URL:    a.cfg.BaseURL + path + "?" + query,
		Header: header,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, apiError(resp)
	}
	return resp.Body, nil
}

func apiError(resp *transport.Response) error {
	var raw struct {
		Code json.Number `json:"code"`
		Msg  string      `json:"msg"`
	}
	_ = json.Unmarshal(resp.Body, &raw)
	return &domain.APIError{Exchange: name, Status: resp.Status, Code: raw.Code.String(), Message: raw.Msg}
}

// toFloat parses optional numeric strings, defaulting to zero on absence or
// malformed input. Required fields are validated separately.
func toFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toEntries(levels [][2]string) []domain.OrderBookEntry {
	out := make([]domain.OrderBookEntry, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.OrderBookEntry{Price: toFloat(l[0]), Quantity: toFloat(l[1])})
	}
	return out
}
