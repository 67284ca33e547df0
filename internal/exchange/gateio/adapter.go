// Package gateio implements the exchange adapter for the Gate.io v4 REST
// API. Gate returns plain JSON with no envelope; failures arrive as non-2xx
// with a label/message body. Signing is HMAC-SHA512 over the five-line
// canonical string with the body SHA-512 hashed.
package gateio

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

const name = "gateio"

// Adapter is the Gate.io spot adapter.
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
		cfg.BaseURL = "https://api.gateio.ws"
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

// WireSymbol maps canonical BASE/QUOTE to Gate's underscored currency pair,
// e.g. BTC/USDT → BTC_USDT.
func WireSymbol(symbol string) (string, error) {
	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + "_" + quote, nil
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	body, err := a.do(ctx, http.MethodGet, "/api/v4/spot/tickers", url.Values{"currency_pair": {wire}}, nil, false)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("gateio: get ticker %s: %w", symbol, err)
	}

	var raw []struct {
		CurrencyPair string `json:"currency_pair"`
		HighestBid   string `json:"highest_bid"`
		LowestAsk    string `json:"lowest_ask"`
		Last         string `json:"last"`
		BaseVolume   string `json:"base_volume"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(body), Err: orMissing(err, "empty ticker list")}
	}
	t := raw[0]
	if t.CurrencyPair == "" {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(body), Err: fmt.Errorf("missing currency_pair")}
	}

	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  name,
		Bid:       toFloat(t.HighestBid),
		Ask:       toFloat(t.LowestAsk),
		Last:      toFloat(t.Last),
		Volume24h: toFloat(t.BaseVolume),
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

	body, err := a.do(ctx, http.MethodGet, "/api/v4/spot/order_book", url.Values{
		"currency_pair": {wire},
		"limit":         {strconv.Itoa(depth)},
	}, nil, false)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("gateio: get order book %s: %w", symbol, err)
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

func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	body, err := a.do(ctx, http.MethodGet, "/api/v4/spot/accounts", nil, nil, true)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("gateio: get balance: %w", err)
	}

	var raw []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Locked    string `json:"locked"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.AccountBalance{}, &domain.ParseError{Exchange: name, Op: "get balance", Raw: string(body), Err: err}
	}

	out := domain.AccountBalance{Exchange: name, Assets: make(map[string]domain.AssetBalance), Timestamp: a.now()}
	for _, b := range raw {
		avail := toFloat(b.Available)
		locked := toFloat(b.Locked)
		if avail == 0 && locked == 0 {
			continue
		}
		asset := strings.ToUpper(b.Currency)
		out.Assets[asset] = domain.AssetBalance{Asset: asset, Available: avail, Total: avail + locked}
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

	payload := map[string]string{
		"currency_pair": wire,
		"side":          string(req.Side),
		"type":          string(req.Type),
		"amount":        trimFloat(req.Quantity),
	}
	if req.Type == domain.OrderTypeLimit {
		payload["price"] = trimFloat(req.Price)
	} else {
		// Gate market orders are IOC and, for buys, sized in quote currency.
		payload["time_in_force"] = "ioc"
	}
	if req.ClientOrderID != "" {
		payload["text"] = "t-" + req.ClientOrderID
	}

	body, err := a.do(ctx, http.MethodPost, "/api/v4/spot/orders", nil, payload, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("gateio: place order: %w", err)
	}
	return a.parseOrder(body, "place order", req.Symbol)
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return err
	}
	_, err = a.do(ctx, http.MethodDelete, "/api/v4/spot/orders/"+url.PathEscape(orderID),
		url.Values{"currency_pair": {wire}}, nil, true)
	if err != nil {
		return fmt.Errorf("gateio: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	body, err := a.do(ctx, http.MethodGet, "/api/v4/spot/orders/"+url.PathEscape(orderID),
		url.Values{"currency_pair": {wire}}, nil, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("gateio: get order %s: %w", orderID, err)
	}
	return a.parseOrder(body, "get order", symbol)
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	if symbol == "" {
		// Listing across pairs needs the paged open_orders endpoint; keep the
		// bulk contract best-effort and scope this adapter to one pair.
		a.logger.Warn("get open orders without symbol not supported, returning empty")
		return []domain.Order{}, nil
	}
	wire, err := WireSymbol(symbol)
	if err != nil {
		return nil, err
	}

	body, err := a.do(ctx, http.MethodGet, "/api/v4/spot/orders", url.Values{
		"currency_pair": {wire},
		"status":        {"open"},
	}, nil, true)
	if err != nil {
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
	_, err := a.do(ctx, http.MethodGet, "/api/v4/spot/time", nil, nil, false)
	if err != nil {
		return fmt.Errorf("gateio: test connection: %w", err)
	}
	return nil
}

// ───────────────────────── internal ─────────────────────────

func mapStatus(status string, filled float64) domain.OrderStatus {
	switch status {
	case "open":
		if filled > 0 {
			return domain.OrderStatusPartiallyFilled
		}
		return domain.OrderStatusOpen
	case "closed":
		return domain.OrderStatusFilled
	case "cancelled":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusError
	}
}

func (a *Adapter) parseOrder(body []byte, op, symbol string) (domain.Order, error) {
	var raw struct {
		ID           string `json:"id"`
		Text         string `json:"text"`
		CurrencyPair string `json:"currency_pair"`
		Side         string `json:"side"`
		Type         string `json:"type"`
		Status       string `json:"status"`
		Amount       string `json:"amount"`
		FilledAmount string `json:"filled_amount"`
		Price        string `json:"price"`
		AvgDealPrice string `json:"avg_deal_price"`
		Fee          string `json:"fee"`
		FeeCurrency  string `json:"fee_currency"`
		CreateTimeMs string `json:"create_time_ms"`
		UpdateTimeMs string `json:"update_time_ms"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: op, Raw: string(body), Err: err}
	}
	if raw.ID == "" || raw.CurrencyPair == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: op, Raw: string(body), Err: fmt.Errorf("missing id or currency_pair")}
	}

	amount := toFloat(raw.Amount)
	filled := toFloat(raw.FilledAmount)
	clientID := strings.TrimPrefix(raw.Text, "t-")

	return domain.Order{
		ID:            raw.ID,
		ClientOrderID: clientID,
		Exchange:      name,
		Symbol:        symbol,
		Side:          domain.OrderSide(raw.Side),
		Type:          domain.OrderType(raw.Type),
		Status:        mapStatus(raw.Status, filled),
		Quantity:      amount,
		FilledQty:     filled,
		Price:         toFloat(raw.Price),
		AvgPrice:      toFloat(raw.AvgDealPrice),
		Fee:           toFloat(raw.Fee),
		FeeCurrency:   raw.FeeCurrency,
		CreatedAt:     time.UnixMilli(int64(toFloat(raw.CreateTimeMs))),
		UpdatedAt:     time.UnixMilli(int64(toFloat(raw.UpdateTimeMs))),
	}, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, params url.Values, payload map[string]string, signed bool) ([]byte, error) {
	query := params.Encode()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gateio: marshal payload: %w", err)
		}
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if len(body) > 0 {
		header.Set("Content-Type", "application/json")
	}
	if signed {
		if a.apiKey == "" || a.apiSecret == "" {
			return nil, &domain.CredentialsError{Exchange: name, EnvVars: []string{a.cfg.APIKeyEnv, a.cfg.APISecretEnv}}
		}
		ts := strconv.FormatInt(a.now().Unix(), 10)
		for k, v := range sign.Gate(a.apiKey, a.apiSecret, ts, method, path, query, string(body)) {
			header.Set(k, v)
		}
	}

	u := a.cfg.BaseURL + path
	if query != "" {
		u += "?" + query
	}
	resp, err := a.http.Do(ctx, transport.Request{Method: method, URL: u, Header: header, Body: body})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		var raw struct {
			Label   string `json:"label"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(resp.Body, &raw)
		return nil, &domain.APIError{Exchange: name, Status: resp.Status, Code: raw.Label, Message: raw.Message}
	}
	return resp.Body, nil
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
