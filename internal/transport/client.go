// Package transport is the HTTP core shared by every exchange adapter. It
// layers two behaviors over net/http: a per-instance rate-limit permit pool
// and bounded retry with linear backoff. Each adapter owns exactly one Client;
// nothing here is shared across venues.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/coinpulse/arbscan/internal/domain"
)

// Request is a single HTTP exchange to perform. Body is held as bytes so the
// request can be replayed across retry attempts.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the raw outcome of a Request. Non-2xx statuses with
// non-retryable semantics are returned here rather than as errors; mapping a
// business rejection onto a typed error needs venue context the transport
// does not have, so that classification belongs to the adapter.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Client wraps an *http.Client with rate limiting and retry. The rate limiter
// is a counting permit pool: acquiring blocks (never fails) until a permit is
// free, and every acquired permit is handed back on a fixed timer regardless
// of how long the underlying call takes. This is deliberately looser than a
// token bucket — a slow in-flight call can briefly admit more than
// rateLimit outstanding requests — and callers depend on that looseness;
// do not tighten it.
type Client struct {
	httpc      *http.Client
	sem        *semaphore.Weighted
	maxRetries int
	logger     *slog.Logger

	// releaseEvery and backoffUnit are fixed at 1s in production and shrunk
	// by tests to keep them off the wall clock.
	releaseEvery time.Duration
	backoffUnit  time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// Config carries the transport slice of an ExchangeConfig.
type Config struct {
	RateLimitPerSec int
	MaxRetries      int
	Timeout         time.Duration
}

// New creates a transport client. Zero config fields fall back to safe
// defaults (1 req/s, no retries, 30s timeout).
func New(cfg Config, logger *slog.Logger) *Client {
	rate := cfg.RateLimitPerSec
	if rate <= 0 {
		rate = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpc:        &http.Client{Timeout: timeout},
		sem:          semaphore.NewWeighted(int64(rate)),
		maxRetries:   retries,
		logger:       logger.With(slog.String("component", "transport")),
		releaseEvery: time.Second,
		backoffUnit:  time.Second,
		sleep:        sleepCtx,
	}
}

// Do performs the request with permit gating and bounded retry. Transient
// failures (network errors, 5xx, 408, 429) are retried up to MaxRetries extra
// attempts with backoff backoffUnit×attempt; exhaustion surfaces a
// *domain.TransportError naming the endpoint and total attempt count. Any
// other response, 2xx or not, is returned as-is after the first attempt.
// Cancelling ctx aborts the permit wait, any backoff sleep, and the in-flight
// attempt.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	endpoint := endpointOf(req.URL)
	attempts := c.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * c.backoffUnit
			c.logger.Debug("retrying request",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if retryableStatus(resp.Status) {
			lastErr = fmt.Errorf("http %d from %s", resp.Status, endpoint)
			continue
		}
		return resp, nil
	}

	c.logger.Warn("transport exhausted",
		slog.String("endpoint", endpoint),
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()),
	)
	return nil, &domain.TransportError{Endpoint: endpoint, Attempts: attempts, Last: lastErr}
}

// attempt acquires one permit, schedules its release, and performs a single
// HTTP round-trip.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	// The permit goes back on a timer, not when the call finishes. AfterFunc
	// fires even if the caller is long gone, so the pool never starves.
	time.AfterFunc(c.releaseEvery, func() { c.sem.Release(1) })

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: respBody}, nil
}

// retryableStatus reports whether a status has transient semantics.
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

func endpointOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return u.Path
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
