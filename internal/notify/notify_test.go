package notify

import (
	"context"
	"encoding/json"
	"errors"
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

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventOpportunityFound}, discard())

	require.NoError(t, n.Notify(context.Background(), EventOpportunityFound, "hit", "body"))
	require.NoError(t, n.Notify(context.Background(), EventError, "miss", "body"))

	assert.Equal(t, []string{"hit"}, s.titles)
}

func TestEmptyEventListAllowsEverything(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestRepeatGapSuppressesDuplicates(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())
	n.SetRepeatGap(5 * time.Minute)

	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	require.NoError(t, n.Notify(context.Background(), "ev", "same", "m"))
	require.NoError(t, n.Notify(context.Background(), "ev", "same", "m"))
	require.NoError(t, n.Notify(context.Background(), "ev", "other", "m"))
	assert.Equal(t, []string{"same", "other"}, s.titles)

	// Past the gap the same alert delivers again.
	clock = clock.Add(6 * time.Minute)
	require.NoError(t, n.Notify(context.Background(), "ev", "same", "m"))
	assert.Equal(t, []string{"same", "other", "same"}, s.titles)

	// NotifyAll bypasses suppression.
	require.NoError(t, n.NotifyAll(context.Background(), "same", "m"))
	assert.Len(t, s.titles, 4)
}

func TestSenderFailureDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1, "healthy sender still delivered")
}

func TestTelegramSendPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	t.Cleanup(srv.Close)

	s := NewTelegramSender("tok123", "chat9")
	s.baseURL = srv.URL

	require.NoError(t, s.Send(context.Background(), "Title", "Body"))
	assert.Equal(t, "chat9", got["chat_id"])
	assert.Equal(t, "*Title*\nBody", got["text"])
}

func TestDiscordSendPayload(t *testing.T) {
	var got struct {
		Username string `json:"username"`
		Embeds   []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Title", "Body"))
	assert.Equal(t, "arbscan", got.Username)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Title", got.Embeds[0].Title)
	assert.Equal(t, "Body", got.Embeds[0].Description)
	assert.NotZero(t, got.Embeds[0].Color)
}

func TestDiscordErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFormatOpportunity(t *testing.T) {
	title, message := FormatOpportunity(domain.ScanResult{
		Symbol:        "BTC/USDT",
		Score:         90,
		BestBuyVenue:  "binance",
		BestBuyPrice:  42010,
		BestSellVenue: "okx",
		BestSellPrice: 42180,
		SpreadPercent: 0.4046,
		EstProfit:     2.05,
		Strategy:      "arbitrage_best",
		Prices:        []domain.ExchangePrice{{}, {}, {}},
	})

	assert.Equal(t, "Arbitrage opportunity: BTC/USDT (score 90)", title)
	assert.Contains(t, message, "Buy on binance at 42010")
	assert.Contains(t, message, "sell on okx at 42180")
	assert.Contains(t, message, "Spread: 0.4046%")
	assert.Contains(t, message, "Venues: 3")
}
