package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrCredentialsMissing  = errors.New("credentials missing")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderRejected       = errors.New("order rejected")
	ErrParse               = errors.New("parse failure")
	ErrTransportExhausted  = errors.New("transport retries exhausted")
	ErrNotSupported        = errors.New("operation not supported")
	ErrContextDone         = errors.New("context cancelled")
)

// CredentialsError reports which environment variables an authenticated call
// expected to find set. It is returned before any signed request is attempted.
type CredentialsError struct {
	Exchange string
	EnvVars  []string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: credentials missing, expected env vars: %s",
		e.Exchange, strings.Join(e.EnvVars, ", "))
}

func (e *CredentialsError) Unwrap() error { return ErrCredentialsMissing }

// APIError is a business-level rejection reported by an exchange (non-2xx with
// non-retryable semantics, or an error code inside a 200 envelope). It is
// never retried by the transport.
type APIError struct {
	Exchange string
	Status   int    // HTTP status, 0 when the error came inside a 200 body
	Code     string // exchange-specific error code, may be empty
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: api error %s (http %d): %s", e.Exchange, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: api error (http %d): %s", e.Exchange, e.Status, e.Message)
}

// ParseError wraps a malformed or unexpectedly shaped exchange response. Raw
// carries (a prefix of) the offending payload for log context.
type ParseError struct {
	Exchange string
	Op       string
	Raw      string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: parse response: %v (raw: %s)", e.Exchange, e.Op, e.Err, truncate(e.Raw, 256))
}

func (e *ParseError) Unwrap() error { return ErrParse }

// TransportError is the terminal error after the retry budget for an endpoint
// is exhausted. Attempts counts every attempt made, including the first.
type TransportError struct {
	Endpoint string
	Attempts int
	Last     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport exhausted after %d attempt(s) on %s: %v", e.Attempts, e.Endpoint, e.Last)
}

func (e *TransportError) Unwrap() error { return ErrTransportExhausted }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
