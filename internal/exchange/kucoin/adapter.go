// Package kucoin implements the exchange adapter for the KuCoin v1 REST API
// using key-version-2 signing (the passphrase header is itself HMAC-signed).
// Responses use a code/data envelope where "200000" means success.
package kucoin

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

const (
	name   = "kucoin"
	codeOK = "200000"
)

// Adapter is the KuCoin spot adapter.
type Adapter struct {
	cfg    domain.ExchangeConfig
	http   *transport.Client
	logger *slog.Logger
	now    func() time.Time

	apiKey     string
	apiSecret  string
	passphrase string
}

func New(cfg domain.ExchangeConfig, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.kucoin.com"
	}
	return &Adapter{
		cfg: cfg,
		http: transport.New(transport.Config{
			RateLimitPerSec: cfg.RateLimitPerSec,
			MaxRetries:      cfg.MaxRetries,
			Timeout:         cfg.Timeout,
		}, logger),
		logger:     logger.With(slog.String("exchange", name)),
		now:        time.Now,
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		apiSecret:  os.Getenv(cfg.APISecretEnv),
		passphrase: os.Getenv(cfg.PassphraseEnv),
	}
}

func (a *Adapter) Name() string { return name }

// WireSymbol maps canonical BASE/QUOTE to KuCoin's dashed form,
// e.g. BTC/USDT → BTC-USDT.
func WireSymbol(symbol string) (string, error) {
	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + "-" + quote, nil
}

// GetTicker uses the 24h stats endpoint, which carries best bid/ask, last,
// and volume. KuCoin does not expose top-of-book quantities there; they
// default to zero.
func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	data, err := a.do(ctx, http.MethodGet, "/api/v1/market/stats", url.Values{"symbol": {wire}}, nil, false)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("kucoin: get ticker %s: %w", symbol, err)
	}

	var raw struct {
		Symbol string `json:"symbol"`
		Buy    string `json:"buy"`
		Sell   string `json:"sell"`
		Last   string `json:"last"`
		Vol    string `json:"vol"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(data), Err: err}
	}
	if raw.Symbol == "" {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(data), Err: fmt.Errorf("missing symbol")}
	}

	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  name,
		Bid:       toFloat(raw.Buy),
		Ask:       toFloat(raw.Sell),
		Last:      toFloat(raw.Last),
		Volume24h: toFloat(raw.Vol),
		Timestamp: a.now(),
	}.Normalize(), nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}

	data, err := a.do(ctx, http.MethodGet, "/api/v1/market/orderbook/level2_100", url.Values{"symbol": {wire}}, nil, false)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("kucoin: get order book %s: %w", symbol, err)
	}

	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.OrderBook{}, &domain.ParseError{Exchange: name, Op: "get order book", Raw: string(data), Err: err}
	}

	book := domain.OrderBook{
		Symbol:    symbol,
		Exchange:  name,
		Bids:      toEntries(raw.Bids),
		Asks:      toEntries(raw.Asks),
		Timestamp: a.now(),
	}
	if depth > 0 {
		if len(book.Bids) > depth {
			book.Bids = book.Bids[:depth]
		}
		if len(book.Asks) > depth {
			book.Asks = book.Asks[:depth]
		}
	}
	return book, nil
}

// GetBalance lists trade accounts; KuCoin splits funds across account types
// and only the trade account matters for spot.
func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	data, err := a.do(ctx, http.MethodGet, "/api/v1/accounts", url.Values{"type": {"trade"}}, nil, true)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("kucoin: get balance: %w", err)
	}

	var raw []struct {
		Currency  string `json:"currency"`
		Balance   string `json:"balance"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.AccountBalance{}, &domain.ParseError{Exchange: name, Op: "get balance", Raw: string(data), Err: err}
	}

	out := domain.AccountBalance{Exchange: name, Assets: make(map[string]domain.AssetBalance), Timestamp: a.now()}
	for _, b := range raw {
		total := toFloat(b.Balance)
		if total == 0 {
			continue
		}
		asset := strings.ToUpper(b.Currency)
		out.Assets[asset] = domain.AssetBalance{Asset: asset, Available: toFloat(b.Available), Total: total}
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

func (a *Adapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	wire, err := WireSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	payload := map[string]string{
		"clientOid": clientID,
		"symbol":    wire,
		"side":      string(req.Side),
		"type":      string(req.Type),
		"size":      trimFloat(req.Quantity),
	}
	if req.Type == domain.OrderTypeLimit {
		payload["price"] = trimFloat(req.Price)
	}

	data, err := a.do(ctx, http.MethodPost, "/api/v1/orders", nil, payload, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("kucoin: place order: %w", err)
	}

	var raw struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.OrderID == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: "place order", Raw: string(data), Err: orMissing(err, "missing orderId")}
	}

	now := a.now()
	return domain.Order{
		ID:            raw.OrderID,
		ClientOrderID: clientID,
		Exchange:      name,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        domain.OrderStatusPending,
		Quantity:      req.Quantity,
		Price:         req.Price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := a.do(ctx, http.MethodDelete, "/api/v1/orders/"+url.PathEscape(orderID), nil, nil, true)
	if err != nil {
		return fmt.Errorf("kucoin: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	data, err := a.do(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(orderID), nil, nil, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("kucoin: get order %s: %w", orderID, err)
	}
	return a.parseOrder(data, "get order", symbol)
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{"status": {"active"}}
	if symbol != "" {
		wire, err := WireSymbol(symbol)
		if err != nil {
			return nil, err
		}
		params.Set("symbol", wire)
	}

	data, err := a.do(ctx, http.MethodGet, "/api/v1/orders", params, nil, true)
	if err != nil {
		a.logger.Warn("get open orders failed", slog.String("error", err.Error()))
		return []domain.Order{}, nil
	}

	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, &domain.ParseError{Exchange: name, Op: "get open orders", Raw: string(data), Err: err}
	}
	orders := make([]domain.Order, 0, len(page.Items))
	for _, item := range page.Items {
		o, err := a.parseOrder(item, "get open orders", symbol)
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
	_, err := a.do(ctx, http.MethodGet, "/api/v1/timestamp", nil, nil, false)
	if err != nil {
		return fmt.Errorf("kucoin: test connection: %w", err)
	}
	return nil
}

// ───────────────────────── internal ─────────────────────────

// mapStatus derives the canonical status from KuCoin's isActive/cancelExist
// flags plus fill progress; KuCoin has no single status string.
func mapStatus(isActive, cancelExist bool, filled, requested float64) domain.OrderStatus {
	switch {
	case isActive && filled > 0:
		return domain.OrderStatusPartiallyFilled
	case isActive:
		return domain.OrderStatusOpen
	case cancelExist:
		return domain.OrderStatusCancelled
	case requested > 0 && filled >= requested:
		return domain.OrderStatusFilled
	case filled > 0:
		return domain.OrderStatusPartiallyFilled
	default:
		return domain.OrderStatusError
	}
}

func (a *Adapter) parseOrder(data []byte, op, symbol string) (domain.Order, error) {
	var raw struct {
		ID          string `json:"id"`
		ClientOid   string `json:"clientOid"`
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		Type        string `json:"type"`
		Size        string `json:"size"`
		DealSize    string `json:"dealSize"`
		DealFunds   string `json:"dealFunds"`
		Price       string `json:"price"`
		Fee         string `json:"fee"`
		FeeCurrency string `json:"feeCurrency"`
		IsActive    bool   `json:"isActive"`
		CancelExist bool   `json:"cancelExist"`
		CreatedAt   int64  `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: op, Raw: string(data), Err: err}
	}
	if raw.ID == "" || raw.Symbol == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: op, Raw: string(data), Err: fmt.Errorf("missing id or symbol")}
	}

	size := toFloat(raw.Size)
	filled := toFloat(raw.DealSize)
	var avg float64
	if filled > 0 {
		avg = toFloat(raw.DealFunds) / filled
	}

	return domain.Order{
		ID:            raw.ID,
		ClientOrderID: raw.ClientOid,
		Exchange:      name,
		Symbol:        symbol,
		Side:          domain.OrderSide(raw.Side),
		Type:          domain.OrderType(raw.Type),
		Status:        mapStatus(raw.IsActive, raw.CancelExist, filled, size),
		Quantity:      size,
		FilledQty:     filled,
		Price:         toFloat(raw.Price),
		AvgPrice:      avg,
		Fee:           toFloat(raw.Fee),
		FeeCurrency:   raw.FeeCurrency,
		CreatedAt:     time.UnixMilli(raw.CreatedAt),
		UpdatedAt:     time.UnixMilli(raw.CreatedAt),
	}, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, params url.Values, payload map[string]string, signed bool) (json.RawMessage, error) {
	endpoint := path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("kucoin: marshal payload: %w", err)
		}
	}

	header := http.Header{}
	if len(body) > 0 {
		header.Set("Content-Type", "application/json")
	}
	if signed {
		if a.apiKey == "" || a.apiSecret == "" || a.passphrase == "" {
			return nil, &domain.CredentialsError{
				Exchange: name,
				EnvVars:  []string{a.cfg.APIKeyEnv, a.cfg.APISecretEnv, a.cfg.PassphraseEnv},
			}
		}
		ts := strconv.FormatInt(a.now().UnixMilli(), 10)
		for k, v := range sign.KuCoin(a.apiKey, a.apiSecret, a.passphrase, ts, method, endpoint, string(body)) {
			header.Set(k, v)
		}
	}

	resp, err := a.http.Do(ctx, transport.Request{
		Method: method,
		URL:    a.cfg.BaseURL + endpoint,
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
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, &domain.ParseError{Exchange: name, Op: "unwrap envelope", Raw: string(resp.Body), Err: err}
	}
	if env.Code != codeOK {
		return nil, &domain.APIError{Exchange: name, Status: resp.Status, Code: env.Code, Message: env.Msg}
	}
	return env.Data, nil
}

func orMissing(err error, msg string) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%s", msg)
}

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
