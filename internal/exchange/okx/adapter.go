// Package okx implements the exchange adapter for the OKX v5 REST API.
// Responses use a code/data envelope; signing covers the full request path
// including the query string, with an ISO-8601 millisecond timestamp and a
// plaintext passphrase header.
package okx

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

const name = "okx"

// Adapter is the OKX spot adapter.
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
		cfg.BaseURL = "https://www.okx.com"
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

// WireSymbol maps canonical BASE/QUOTE to OKX's dashed instrument id,
// e.g. BTC/USDT → BTC-USDT.
func WireSymbol(symbol string) (string, error) {
	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + "-" + quote, nil
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	data, err := a.do(ctx, http.MethodGet, "/api/v5/market/ticker", url.Values{"instId": {wire}}, nil, false)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("okx: get ticker %s: %w", symbol, err)
	}

	var raw []struct {
		InstID string `json:"instId"`
		BidPx  string `json:"bidPx"`
		BidSz  string `json:"bidSz"`
		AskPx  string `json:"askPx"`
		AskSz  string `json:"askSz"`
		Last   string `json:"last"`
		Vol24h string `json:"vol24h"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(data), Err: orMissing(err, "empty data")}
	}
	t := raw[0]
	if t.InstID == "" {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(data), Err: fmt.Errorf("missing instId")}
	}

	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  name,
		Bid:       toFloat(t.BidPx),
		BidQty:    toFloat(t.BidSz),
		Ask:       toFloat(t.AskPx),
		AskQty:    toFloat(t.AskSz),
		Last:      toFloat(t.Last),
		Volume24h: toFloat(t.Vol24h),
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

	data, err := a.do(ctx, http.MethodGet, "/api/v5/market/books", url.Values{
		"instId": {wire},
		"sz":     {strconv.Itoa(depth)},
	}, nil, false)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("okx: get order book %s: %w", symbol, err)
	}

	// OKX levels carry four fields; only price and size matter here.
	var raw []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return domain.OrderBook{}, &domain.ParseError{Exchange: name, Op: "get order book", Raw: string(data), Err: orMissing(err, "empty data")}
	}

	return domain.OrderBook{
		Symbol:    symbol,
		Exchange:  name,
		Bids:      toEntries(raw[0].Bids),
		Asks:      toEntries(raw[0].Asks),
		Timestamp: a.now(),
	}, nil
}

func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	data, err := a.do(ctx, http.MethodGet, "/api/v5/account/balance", nil, nil, true)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("okx: get balance: %w", err)
	}

	var raw []struct {
		Details []struct {
			Ccy      string `json:"ccy"`
			CashBal  string `json:"cashBal"`
			AvailBal string `json:"availBal"`
		} `json:"details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.AccountBalance{}, &domain.ParseError{Exchange: name, Op: "get balance", Raw: string(data), Err: err}
	}

	out := domain.AccountBalance{Exchange: name, Assets: make(map[string]domain.AssetBalance), Timestamp: a.now()}
	for _, d := range raw {
		for _, c := range d.Details {
			total := toFloat(c.CashBal)
			if total == 0 {
				continue
			}
			asset := strings.ToUpper(c.Ccy)
			out.Assets[asset] = domain.AssetBalance{Asset: asset, Available: toFloat(c.AvailBal), Total: total}
		}
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
		// OKX client order ids must be alphanumeric.
		clientID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	payload := map[string]string{
		"instId":  wire,
		"tdMode":  "cash",
		"side":    string(req.Side),
		"ordType": string(req.Type),
		"sz":      trimFloat(req.Quantity),
		"clOrdId": clientID,
	}
	if req.Type == domain.OrderTypeLimit {
		payload["px"] = trimFloat(req.Price)
	}

	data, err := a.do(ctx, http.MethodPost, "/api/v5/trade/order", nil, payload, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("okx: place order: %w", err)
	}

	var raw []struct {
		OrdID   string `json:"ordId"`
		ClOrdID string `json:"clOrdId"`
		SCode   string `json:"sCode"`
		SMsg    string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: "place order", Raw: string(data), Err: orMissing(err, "empty data")}
	}
	if raw[0].SCode != "" && raw[0].SCode != "0" {
		return domain.Order{}, &domain.APIError{Exchange: name, Code: raw[0].SCode, Message: raw[0].SMsg}
	}
	if raw[0].OrdID == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: "place order", Raw: string(data), Err: fmt.Errorf("missing ordId")}
	}

	now := a.now()
	return domain.Order{
		ID:            raw[0].OrdID,
		ClientOrderID: raw[0].ClOrdID,
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
	wire, err := WireSymbol(symbol)
	if err != nil {
		return err
	}
	_, err = a.do(ctx, http.MethodPost, "/api/v5/trade/cancel-order", nil, map[string]string{
		"instId": wire,
		"ordId":  orderID,
	}, true)
	if err != nil {
		return fmt.Errorf("okx: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	data, err := a.do(ctx, http.MethodGet, "/api/v5/trade/order", url.Values{
		"instId": {wire},
		"ordId":  {orderID},
	}, nil, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("okx: get order %s: %w", orderID, err)
	}

	orders, err := a.parseOrders(data, "get order", symbol)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("okx: get order %s: %w", orderID, domain.ErrNotFound)
	}
	return orders[0], nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{"instType": {"SPOT"}}
	if symbol != "" {
		wire, err := WireSymbol(symbol)
		if err != nil {
			return nil, err
		}
		params.Set("instId", wire)
	}

	data, err := a.do(ctx, http.MethodGet, "/api/v5/trade/orders-pending", params, nil, true)
	if err != nil {
		a.logger.Warn("get open orders failed", slog.String("error", err.Error()))
		return []domain.Order{}, nil
	}
	return a.parseOrders(data, "get open orders", symbol)
}

func (a *Adapter) Connect(ctx context.Context) error { return a.TestConnection(ctx) }

func (a *Adapter) Disconnect() error { return nil }

func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodGet, "/api/v5/public/time", nil, nil, false)
	if err != nil {
		return fmt.Errorf("okx: test connection: %w", err)
	}
	return nil
}

// ───────────────────────── internal ─────────────────────────

func mapStatus(s string) domain.OrderStatus {
	switch s {
	case "live":
		return domain.OrderStatusOpen
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "mmp_canceled":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusError
	}
}

func (a *Adapter) parseOrders(data []byte, op, symbol string) ([]domain.Order, error) {
	var raw []struct {
		OrdID   string `json:"ordId"`
		ClOrdID string `json:"clOrdId"`
		InstID  string `json:"instId"`
		Side    string `json:"side"`
		OrdType string `json:"ordType"`
		State   string `json:"state"`
		Sz      string `json:"sz"`
		AccFill string `json:"accFillSz"`
		Px      string `json:"px"`
		AvgPx   string `json:"avgPx"`
		Fee     string `json:"fee"`
		FeeCcy  string `json:"feeCcy"`
		CTime   string `json:"cTime"`
		UTime   string `json:"uTime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ParseError{Exchange: name, Op: op, Raw: string(data), Err: err}
	}

	orders := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		if o.OrdID == "" || o.InstID == "" {
			return nil, &domain.ParseError{Exchange: name, Op: op, Raw: string(data), Err: fmt.Errorf("missing ordId or instId")}
		}
		orders = append(orders, domain.Order{
			ID:            o.OrdID,
			ClientOrderID: o.ClOrdID,
			Exchange:      name,
			Symbol:        symbol,
			Side:          domain.OrderSide(o.Side),
			Type:          domain.OrderType(o.OrdType),
			Status:        mapStatus(o.State),
			Quantity:      toFloat(o.Sz),
			FilledQty:     toFloat(o.AccFill),
			Price:         toFloat(o.Px),
			AvgPrice:      toFloat(o.AvgPx),
			Fee:           -toFloat(o.Fee), // OKX reports fees as negative numbers
			FeeCurrency:   o.FeeCcy,
			CreatedAt:     time.UnixMilli(int64(toFloat(o.CTime))),
			UpdatedAt:     time.UnixMilli(int64(toFloat(o.UTime))),
		})
	}
	return orders, nil
}

// do performs a request, signing when required, and unwraps the code/data
// envelope.
func (a *Adapter) do(ctx context.Context, method, path string, params url.Values, payload map[string]string, signed bool) (json.RawMessage, error) {
	requestPath := path
	if len(params) > 0 {
		requestPath += "?" + params.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("okx: marshal payload: %w", err)
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
		ts := sign.OKXTimestamp(a.now())
		for k, v := range sign.OKX(a.apiKey, a.apiSecret, a.passphrase, ts, method, requestPath, string(body)) {
			header.Set(k, v)
		}
	}

	resp, err := a.http.Do(ctx, transport.Request{
		Method: method,
		URL:    a.cfg.BaseURL + requestPath,
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
	if env.Code != "0" {
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

func toEntries(levels [][]string) []domain.OrderBookEntry {
	out := make([]domain.OrderBookEntry, 0, len(levels))
	for _, l := range levels {
		if len(l) < 2 {
			continue
		}
		out = append(out, domain.OrderBookEntry{Price: toFloat(l[0]), Quantity: toFloat(l[1])})
	}
	return out
}
