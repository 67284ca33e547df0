// Package bybit implements the exchange adapter for the Bybit v5 spot REST
// API. Every response travels in a retCode/result envelope; a non-zero
// retCode inside a 200 is still a business rejection.
package bybit

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
	name       = "bybit"
	recvWindow = "5000"
)

// Adapter is the Bybit spot adapter.
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
		cfg.BaseURL = "https://api.bybit.com"
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

// WireSymbol maps canonical BASE/QUOTE to Bybit's concatenated form.
func WireSymbol(symbol string) (string, error) {
	base, quote, err := domain.SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Ticker{}, err
	}

	result, err := a.get(ctx, "/v5/market/tickers", url.Values{"category": {"spot"}, "symbol": {wire}}, false)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("bybit: get ticker %s: %w", symbol, err)
	}

	var raw struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Bid1Size  string `json:"bid1Size"`
			Ask1Price string `json:"ask1Price"`
			Ask1Size  string `json:"ask1Size"`
			LastPrice string `json:"lastPrice"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &raw); err != nil || len(raw.List) == 0 {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(result), Err: orMissing(err, "empty ticker list")}
	}
	t := raw.List[0]
	if t.Symbol == "" {
		return domain.Ticker{}, &domain.ParseError{Exchange: name, Op: "get ticker", Raw: string(result), Err: fmt.Errorf("missing symbol")}
	}

	return domain.Ticker{
		Symbol:    symbol,
		Exchange:  name,
		Bid:       toFloat(t.Bid1Price),
		BidQty:    toFloat(t.Bid1Size),
		Ask:       toFloat(t.Ask1Price),
		AskQty:    toFloat(t.Ask1Size),
		Last:      toFloat(t.LastPrice),
		Volume24h: toFloat(t.Volume24h),
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

	result, err := a.get(ctx, "/v5/market/orderbook", url.Values{
		"category": {"spot"},
		"symbol":   {wire},
		"limit":    {strconv.Itoa(depth)},
	}, false)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("bybit: get order book %s: %w", symbol, err)
	}

	var raw struct {
		B [][2]string `json:"b"`
		A [][2]string `json:"a"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return domain.OrderBook{}, &domain.ParseError{Exchange: name, Op: "get order book", Raw: string(result), Err: err}
	}

	return domain.OrderBook{
		Symbol:    symbol,
		Exchange:  name,
		Bids:      toEntries(raw.B),
		Asks:      toEntries(raw.A),
		Timestamp: a.now(),
	}, nil
}

func (a *Adapter) GetBalance(ctx context.Context) (domain.AccountBalance, error) {
	result, err := a.get(ctx, "/v5/account/wallet-balance", url.Values{"accountType": {"UNIFIED"}}, true)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("bybit: get balance: %w", err)
	}

	var raw struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				Locked              string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return domain.AccountBalance{}, &domain.ParseError{Exchange: name, Op: "get balance", Raw: string(result), Err: err}
	}

	out := domain.AccountBalance{Exchange: name, Assets: make(map[string]domain.AssetBalance), Timestamp: a.now()}
	for _, l := range raw.List {
		for _, c := range l.Coin {
			total := toFloat(c.WalletBalance)
			if total == 0 {
				continue
			}
			avail := toFloat(c.AvailableToWithdraw)
			if avail == 0 {
				avail = total - toFloat(c.Locked)
			}
			asset := strings.ToUpper(c.Coin)
			out.Assets[asset] = domain.AssetBalance{Asset: asset, Available: avail, Total: total}
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
		clientID = uuid.NewString()
	}

	payload := map[string]string{
		"category":    "spot",
		"symbol":      wire,
		"side":        titleSide(req.Side),
		"orderType":   titleType(req.Type),
		"qty":         trimFloat(req.Quantity),
		"orderLinkId": clientID,
	}
	if req.Type == domain.OrderTypeLimit {
		payload["price"] = trimFloat(req.Price)
	}

	result, err := a.post(ctx, "/v5/order/create", payload)
	if err != nil {
		return domain.Order{}, fmt.Errorf("bybit: place order: %w", err)
	}

	var raw struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(result, &raw); err != nil || raw.OrderID == "" {
		return domain.Order{}, &domain.ParseError{Exchange: name, Op: "place order", Raw: string(result), Err: orMissing(err, "missing order id")}
	}

	// The create call only acks; authoritative state comes from GetOrder.
	now := a.now()
	return domain.Order{
		ID:            raw.OrderID,
		ClientOrderID: raw.OrderLinkID,
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
	_, err = a.post(ctx, "/v5/order/cancel", map[string]string{
		"category": "spot",
		"symbol":   wire,
		"orderId":  orderID,
	})
	if err != nil {
		return fmt.Errorf("bybit: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	wire, err := WireSymbol(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	result, err := a.get(ctx, "/v5/order/realtime", url.Values{
		"category": {"spot"},
		"symbol":   {wire},
		"orderId":  {orderID},
	}, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("bybit: get order %s: %w", orderID, err)
	}

	orders, err := a.parseOrders(result, "get order", symbol)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("bybit: get order %s: %w", orderID, domain.ErrNotFound)
	}
	return orders[0], nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{"category": {"spot"}, "openOnly": {"0"}}
	if symbol != "" {
		wire, err := WireSymbol(symbol)
		if err != nil {
			return nil, err
		}
		params.Set("symbol", wire)
	}

	result, err := a.get(ctx, "/v5/order/realtime", params, true)
	if err != nil {
		a.logger.Warn("get open orders failed", slog.String("error", err.Error()))
		return []domain.Order{}, nil
	}
	return a.parseOrders(result, "get open orders", symbol)
}

func (a *Adapter) Connect(ctx context.Context) error { return a.TestConnection(ctx) }

func (a *Adapter) Disconnect() error { return nil }

func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.get(ctx, "/v5/market/time", nil, false)
	if err != nil {
		return fmt.Errorf("bybit: test connection: %w", err)
	}
	return nil
}

// ───────────────────────── internal ─────────────────────────

func mapStatus(s string) domain.OrderStatus {
	switch s {
	case "Created":
		return domain.OrderStatusPending
	case "New", "Triggered":
		return domain.OrderStatusOpen
	case "PartiallyFilled":
		return domain.OrderStatusPartiallyFilled
	case "Filled":
		return domain.OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return domain.OrderStatusCancelled
	case "Rejected":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusError
	}
}

func (a *Adapter) parseOrders(result []byte, op, symbol string) ([]domain.Order, error) {
	var raw struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			OrderStatus string `json:"orderStatus"`
			Qty         string `json:"qty"`
			CumExecQty  string `json:"cumExecQty"`
			Price       string `json:"price"`
			AvgPrice    string `json:"avgPrice"`
			CumExecFee  string `json:"cumExecFee"`
			CreatedTime string `json:"createdTime"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, &domain.ParseError{Exchange: name, Op: op, Raw: string(result), Err: err}
	}

	orders := make([]domain.Order, 0, len(raw.List))
	for _, o := range raw.List {
		if o.OrderID == "" || o.Symbol == "" {
			return nil, &domain.ParseError{Exchange: name, Op: op, Raw: string(result), Err: fmt.Errorf("missing order id or symbol")}
		}
		orders = append(orders, domain.Order{
			ID:            o.OrderID,
			ClientOrderID: o.OrderLinkID,
			Exchange:      name,
			Symbol:        symbol,
			Side:          domain.OrderSide(strings.ToLower(o.Side)),
			Type:          domain.OrderType(strings.ToLower(o.OrderType)),
			Status:        mapStatus(o.OrderStatus),
			Quantity:      toFloat(o.Qty),
			FilledQty:     toFloat(o.CumExecQty),
			Price:         toFloat(o.Price),
			AvgPrice:      toFloat(o.AvgPrice),
			Fee:           toFloat(o.CumExecFee),
			CreatedAt:     time.UnixMilli(int64(toFloat(o.CreatedTime))),
			UpdatedAt:     time.UnixMilli(int64(toFloat(o.UpdatedTime))),
		})
	}
	return orders, nil
}

// get performs a GET, optionally signed, and unwraps the v5 envelope.
func (a *Adapter) get(ctx context.Context, path string, params url.Values, signed bool) (json.RawMessage, error) {
	query := params.Encode()

	header := http.Header{}
	if signed {
		if a.apiKey == "" || a.apiSecret == "" {
			return nil, &domain.CredentialsError{Exchange: name, EnvVars: []string{a.cfg.APIKeyEnv, a.cfg.APISecretEnv}}
		}
		ts := strconv.FormatInt(a.now().UnixMilli(), 10)
		for k, v := range sign.Bybit(a.apiKey, a.apiSecret, ts, recvWindow, query, "") {
			header.Set(k, v)
		}
	}

	u := a.cfg.BaseURL + path
	if query != "" {
		u += "?" + query
	}
	resp, err := a.http.Do(ctx, transport.Request{Method: http.MethodGet, URL: u, Header: header})
	if err != nil {
		return nil, err
	}
	return unwrap(resp)
}

// post performs a signed JSON POST and unwraps the v5 envelope.
func (a *Adapter) post(ctx context.Context, path string, payload map[string]string) (json.RawMessage, error) {
	if a.apiKey == "" || a.apiSecret == "" {
		return nil, &domain.CredentialsError{Exchange: name, EnvVars: []string{a.cfg.APIKeyEnv, a.cfg.APISecretEnv}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bybit: marshal payload: %w", err)
	}

	ts := strconv.FormatInt(a.now().UnixMilli(), 10)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	for k, v := range sign.Bybit(a.apiKey, a.apiSecret, ts, recvWindow, "", string(body)) {
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
	return unwrap(resp)
}

// unwrap validates the retCode envelope and returns the result payload.
func unwrap(resp *transport.Response) (json.RawMessage, error) {
	if !resp.OK() {
		return nil, &domain.APIError{Exchange: name, Status: resp.Status, Message: string(resp.Body)}
	}
	var env struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, &domain.ParseError{Exchange: name, Op: "unwrap envelope", Raw: string(resp.Body), Err: err}
	}
	if env.RetCode != 0 {
		return nil, &domain.APIError{Exchange: name, Status: resp.Status, Code: strconv.Itoa(env.RetCode), Message: env.RetMsg}
	}
	return env.Result, nil
}

func titleSide(s domain.OrderSide) string {
	if s == domain.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

func titleType(t domain.OrderType) string {
	if t == domain.OrderTypeLimit {
		return "Limit"
	}
	return "Market"
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
