// Package bitkub implements the exchange adapter for the Bitkub REST API.
// Bitkub is quote-first on the wire (BTC/THB → THB_BTC) and signs the raw
// JSON request body, with the signature travelling in X-BTK-SIGN. Responses
// use an error/result envelope where error 0 means success.
package bitkub

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

	"github.com/coinpulse/arbscan/internal/domain"
	"github.com/coinpulse/arbscan/internal/sign"
	"github.com/coinpulse/arbscan/internal/transport"
)

const name = "bitkub"

// Adapter is the Bitkub spot adapter.
type Adapter struct {
	cfg    domain.ExchangeConfig
	http   *transport.Client
	logger *slog.Logger
	now    func() time.Time

	apiKey    string
	apiSecret string
}

func New(cfg domain.ExchangeConfig, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.bitkub.com"
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

// WireSymbol maps canonical BASE/QUOTE to Bitkub's quote-first form,
// e.g. BTC/THB → THB_BTC. The mapping is stable but not invertible for
// exotic quotes; Bitkub only lists THB pairs in practice.
func WireSymbol(symbol string) (string, error) {
	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return quote + "_" + base, nil
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	resp, err := a.public(ctx, "/api/market/ticker", url.Values{"sym": {wire}})
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("bitkub: get ticker %s: %w", symbol, err)
	}

	// The ticker endpoint returns a map keyed by wire symbol.
	var raw map[string]struct {
		Last       float64 `json:"last"`
		HighestBid float64 `json:"highestBid"`
		LowestAsk  float64 `json:"lowestAsk"`
		BaseVolume float64 `json:"baseVolume"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(resp), Err: err}
	}
	t, ok := raw[wire]
	if !ok {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(resp), Err: fmt.Errorf("symbol %s not in response", wire)}
	}

	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  name,
		Bid:       t.HighestBid,
		Ask:       t.LowestAsk,
		Last:      t.Last,
		Volume24h: t.BaseVolume,
		Timestamp: a.now(),
	}.Normalize(), nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}
	if depth <= 0 {
		depth = 20
	}

	resp, err := a.public(ctx, "/api/market/depth", url.Values{
		"sym": {wire},
		"lmt": {strconv.Itoa(depth)},
	})
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("bitkub: get order book %s: %w", symbol, err)
	}

	var raw struct {
		Bids [][2]float64 `json:"bids"`
		Asks [][2]float64 `json:"asks"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return domain.OrderBook{}, &domain.ParseError{Exchange: name, Op: "get order book", Raw: string(resp), Err: err}
	}

	return domain.OrderBook{
		Symbol:    symbol,
		Exchange:  name,
		Bids:      toEntries(raw.Bids),
		Asks:      toEntries(raw.Asks),
		Timestamp: a.now(),
	}, nil
}

func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	result, err := a.signed(ctx, "/api/v3/market/balances", map[string]any{})
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("bitkub: get balance: %w", err)
	}

	var raw map[string]struct {
		Available float64 `json:"available"`
		Reserved  float64 `json:"reserved"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return domain.AccountBalance{}, &domain.ParseError{Exchange: name, Op: "get balance", Raw: string(result), Err: err}
	}

	out := domain.AccountBalance{Exchange: name, Assets: make(map[string]domain.AssetBalance), Timestamp: a.now()}
	for asset, b := range raw {
		if b.Available == 0 && b.Reserved == 0 {
			continue
		}
		asset = strings.ToUpper(asset)
		out.Assets[asset] = domain.AssetBalance{Asset: asset, Available: b.Available, Total: b.Available + b.Reserved}
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

// PlaceOrder routes buys to place-bid and sells to place-ask. Bitkub sizes
// bids in quote currency; for limit buys the spend is quantity×price, and
// market buys treat Quantity as the quote amount to spend.
func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	wire, err := WireSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	path := "/api/v3/market/place-ask"
	amt := req.Quantity
	if req.Side == domain.OrderSideBuy {
		path = "/api/v3/market/place-bid"
		if req.Type == domain.OrderTypeLimit {
			amt = req.Quantity * req.Price
		}
	}

	payload := map[string]any{
		"sym": wire,
		"amt": amt,
		"rat": req.Price,
		"typ": string(req.Type),
	}
	result, err := a.signed(ctx, path, payload)
	if err != nil {
		return domain.Order{}, fmt.Errorf("bitkub: place order: %w", err)
	}

	var raw struct {
		ID   json.Number `json:"id"`
		Hash string      `json:"hash"`
		Typ  string      `json:"typ"`
		Amt  float64     `json:"amt"`
		Rat  float64     `json:"rat"`
		Fee  float64     `json:"fee"`
		Ts   json.Number `json:"ts"`
	}
	if err := json.Unmarshal(result, &raw); err != nil || raw.ID.String() == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: "place order", Raw: string(result), Err: orMissing(err, "missing order id")}
	}

	now := a.now()
	return domain.Order{
		ID:          raw.ID.String(),
		Exchange:    name,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Status:      domain.OrderStatusOpen,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Fee:         raw.Fee,
		FeeCurrency: feeCurrency(req.Symbol, req.Side),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return err
	}
	_, err = a.signed(ctx, "/api/v3/market/cancel-order", map[string]any{
		"sym": wire,
		"id":  orderID,
	})
	if err != nil {
		return fmt.Errorf("bitkub: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	result, err := a.signed(ctx, "/api/v3/market/order-info", map[string]any{
		"sym": wire,
		"id":  orderID,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("bitkub: get order %s: %w", orderID, err)
	}

	var raw struct {
		ID      json.Number `json:"id"`
		Side    string      `json:"side"`
		Status  string      `json:"status"`
		Amount  float64     `json:"amount"`
		Rate    float64     `json:"rate"`
		Fee     float64     `json:"fee"`
		Filled  float64     `json:"filled"`
		History []struct {
			Amount float64     `json:"amount"`
			Rate   float64     `json:"rate"`
			Ts     json.Number `json:"ts"`
		} `json:"history"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: "get order", Raw: string(result), Err: err}
	}
	if raw.ID.String() == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: "get order", Raw: string(result), Err: fmt.Errorf("missing order id")}
	}

	now := a.now()
	return domain.Order{
		ID:          raw.ID.String(),
		Exchange:    name,
		Symbol:      symbol,
		Side:        domain.OrderSide(raw.Side),
		Status:      mapStatus(raw.Status),
		Quantity:    raw.Amount,
		FilledQty:   raw.Filled,
		Price:       raw.Rate,
		AvgPrice:    raw.Rate,
		Fee:         raw.Fee,
		FeeCurrency: feeCurrency(symbol, domain.OrderSide(raw.Side)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetOpenOrders is not implemented for Bitkub; per the adapter contract the
// default behavior is to log and return empty rather than fail callers.
func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	a.logger.Warn("get open orders not implemented, returning empty",
		slog.String("symbol", symbol))
	return []domain.Order{}, nil
}

func (a *Adapter) Connect(ctx context.Context) error { return a.TestConnection(ctx) }

func (a *Adapter) Disconnect() error { return nil }

func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.public(ctx, "/api/status", nil)
	if err != nil {
		return fmt.Errorf("bitkub: test connection: %w", err)
	}
	return nil
}

// ───────────────────────── internal ─────────────────────────

func mapStatus(s string) domain.OrderStatus {
	switch strings.ToLower(s) {
	case "unfilled":
		return domain.OrderStatusOpen
	case "partially_filled", "partial":
		return domain.OrderStatusPartiallyFilled
	case "filled":
		return domain.OrderStatusFilled
	case "cancelled":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusError
	}
}

// feeCurrency: Bitkub charges buys in base currency, sells in quote.
func feeCurrency(symbol string, side domain.OrderSide) string {
	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return ""
	}
	if side == domain.OrderSideBuy {
		return base
	}
	return quote
}

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
		return nil, &domain.APIError{Exchange: name, Status: resp.Status, Message: string(resp.Body)}
	}
	return resp.Body, nil
}

// signed POSTs a JSON body carrying the millisecond timestamp and signs the
// raw serialized body.
func (a *Adapter) signed(ctx context.Context, path string, payload map[string]any) (json.RawMessage, error) {
	if a.apiKey == "" || a.apiSecret == "" {
		return nil, &domain.CredentialsError{Exchange: name, EnvVars: []string{a.cfg.APIKeyEnv, a.cfg.APISecretEnv}}
	}

	ts := a.now().UnixMilli()
	payload["ts"] = ts
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bitkub: marshal payload: %w", err)
	}

	tsStr := strconv.FormatInt(ts, 10)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	for k, v := range sign.Bitkub(a.apiKey, a.apiSecret, tsStr, string(body)) {
		header.Set(k, v)
	}

	resp, err := a.http.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    a.cfg.BaseURL + path,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &domain.APIError{Exchange: name, Status: resp.Status, Message: string(resp.Body)}
	}

	var env struct {
		Error  int             `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, &domain.ParseError{Exchange: name, Op: "unwrap envelope", Raw: string(resp.Body), Err: err}
	}
	if env.Error != 0 {
		return nil, &domain.APIError{Exchange: name, Status: resp.Status, Code: strconv.Itoa(env.Error), Message: "bitkub error code"}
	}
	return env.Result, nil
}

func orMissing(err error, msg string) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%s", msg)
}

func toEntries(levels [][2]float64) []domain.OrderBookEntry {
	out := make([]domain.OrderBookEntry, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.OrderBookEntry{Price: l[0], Quantity: l[1]})
	}
	return out
}
