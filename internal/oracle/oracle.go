// Package oracle is a CoinGecko-shaped client for market-cap and 24h-change
// context. It is strictly best-effort: the engine treats oracle failures as
// "no market context", never as a scan failure, so responses are cached for a
// short TTL and stale data is preferred over an error while the cache holds.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coinpulse/arbscan/internal/domain"
	"github.com/coinpulse/arbscan/internal/transport"
)

const defaultTTL = 60 * time.Second

type Client struct {
	baseURL string
	http    *transport.Client
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	cached    []domain.Coin
	fetchedAt time.Time
}

func New(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	return &Client{
		baseURL: baseURL,
		http: transport.New(transport.Config{
			RateLimitPerSec: 5,
			MaxRetries:      2,
			Timeout:         10 * time.Second,
		}, logger),
		logger: logger.With(slog.String("component", "oracle")),
		ttl:    defaultTTL,
		now:    time.Now,
	}
}

// GetTopCoins returns the top n coins by market cap. Within the TTL the
// cached snapshot is served without a network call.
func (c *Client) GetTopCoins(ctx context.Context, n int) ([]domain.Coin, error) {
	if n <= 0 {
		n = 100
	}

	c.mu.Lock()
	if len(c.cached) > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		cached := c.cached
		c.mu.Unlock()
		return head(cached, n), nil
	}
	c.mu.Unlock()

	coins, err := c.fetch(ctx, n)
	if err != nil {
		// Serve stale data if any exists; the caller prefers old context
		// over none.
		c.mu.Lock()
		cached := c.cached
		c.mu.Unlock()
		if len(cached) > 0 {
			c.logger.Warn("oracle fetch failed, serving stale snapshot",
				slog.Any("error", err))
			return head(cached, n), nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cached = coins
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return head(coins, n), nil
}

// GetCoinID maps a ticker symbol (e.g. BTC) to the oracle's coin id
// (e.g. bitcoin), using the cached top list.
func (c *Client) GetCoinID(ctx context.Context, symbol string) (string, error) {
	coins, err := c.GetTopCoins(ctx, 250)
	if err != nil {
		return "", err
	}
	symbol = strings.ToUpper(symbol)
	for _, coin := range coins {
		if strings.ToUpper(coin.Symbol) == symbol {
			return strings.ToLower(strings.ReplaceAll(coin.Name, " ", "-")), nil
		}
	}
	return "", fmt.Errorf("oracle: coin id for %s: %w", symbol, domain.ErrNotFound)
}

func (c *Client) fetch(ctx context.Context, n int) ([]domain.Coin, error) {
	params := url.Values{
		"vs_currency": {"usd"},
		"order":       {"market_cap_desc"},
		"per_page":    {strconv.Itoa(n)},
		"page":        {"1"},
		"sparkline":   {"false"},
	}
	resp, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + "/coins/markets?" + params.Encode(),
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: get top coins: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("oracle: get top coins: status %d", resp.Status)
	}

	var raw []struct {
		Symbol        string  `json:"symbol"`
		Name          string  `json:"name"`
		CurrentPrice  float64 `json:"current_price"`
		Change24h     float64 `json:"price_change_percentage_24h"`
		TotalVolume   float64 `json:"total_volume"`
		MarketCapRank int     `json:"market_cap_rank"`
		Image         string  `json:"image"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, &domain.ParseError{Exchange: "oracle", Op: "get top coins", Raw: string(resp.Body), Err: err}
	}

	coins := make([]domain.Coin, 0, len(raw))
	for _, r := range raw {
		coins = append(coins, domain.Coin{
			Symbol:        strings.ToUpper(r.Symbol),
			Name:          r.Name,
			Price:         r.CurrentPrice,
			Change24h:     r.Change24h,
			Volume24h:     r.TotalVolume,
			MarketCapRank: r.MarketCapRank,
			ImageURL:      r.Image,
		})
	}
	return coins, nil
}

func head(coins []domain.Coin, n int) []domain.Coin {
	if len(coins) > n {
		return coins[:n]
	}
	return coins
}
