package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinpulse/arbscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimiterAdmission(t *testing.T) {
	const (
		rate     = 2
		requests = 5
		release  = 100 * time.Millisecond
	)

	var mu sync.Mutex
	var hitTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hitTimes = append(hitTimes, time.Now())
		mu.Unlock()
	}))
	defer srv.Close()

	c := New(Config{RateLimitPerSec: rate}, testLogger())
	c.releaseEvery = release

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL + "/ping"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ceil(5/2)-1 = 2 full release intervals must pass before the last
	// request can even start.
	assert.GreaterOrEqual(t, elapsed, 2*release, "5 requests at 2/interval need at least 2 intervals")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hitTimes, requests)
	immediate := 0
	for _, ht := range hitTimes {
		if ht.Sub(start) < release/2 {
			immediate++
		}
	}
	assert.Equal(t, rate, immediate, "exactly rate-many requests proceed before the first release")
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{RateLimitPerSec: 10, MaxRetries: 3}, testLogger())
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL + "/flaky"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(3), hits.Load(), "two failures then one success")
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, slept, "linear backoff 1s×attempt")
}

func TestRetryExhaustion(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	const maxRetries = 2
	c := New(Config{RateLimitPerSec: 10, MaxRetries: maxRetries}, testLogger())
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL + "/down"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransportExhausted))

	var terr *domain.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, maxRetries+1, terr.Attempts)
	assert.Equal(t, "/down", terr.Endpoint)
	assert.Equal(t, int32(maxRetries+1), hits.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, slept)
}

func TestNonRetryableStatusReturnsImmediately(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := New(Config{RateLimitPerSec: 10, MaxRetries: 5}, testLogger())

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL + "/bad"})
	require.NoError(t, err, "business rejections are responses, not transport errors")
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, string(resp.Body), "Invalid symbol")
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
}

func TestCancellationAbortsPermitWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(Config{RateLimitPerSec: 1}, testLogger())
	c.releaseEvery = time.Minute // hold the single permit effectively forever

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, Request{Method: http.MethodGet, URL: srv.URL})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still blocked on permit pool")
	}
}

func TestRequestBodyReplayedAcrossAttempts(t *testing.T) {
	var bodies [][]byte
	var mu sync.Mutex
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := New(Config{RateLimitPerSec: 10, MaxRetries: 1}, testLogger())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	payload := []byte(`{"symbol":"BTCUSDT"}`)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL, Body: payload})
	require.NoError(t, err)
	assert.True(t, resp.OK())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, payload, bodies[0])
	assert.Equal(t, payload, bodies[1])
}
