package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// FetchError is the terminal failure returned by Client.MarketChart after the
// retry budget is spent or a non-retryable provider response is seen.
type FetchError struct {
	AssetID    string
	StatusCode int // zero for transport-level failures
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("coingecko: fetch %s: status %d after %d attempt(s): %v", e.AssetID, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("coingecko: fetch %s: %v after %d attempt(s)", e.AssetID, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error { return e.Err }

// statusError carries a non-2xx HTTP response through the retry loop.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.code, e.body)
}

// rateLimited reports whether the provider asked us to slow down.
func rateLimited(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusTooManyRequests
}

// shouldRetry classifies an attempt failure. Rate-limit responses, server
// errors and transport errors are retryable; other client errors and context
// cancellation are terminal.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code == http.StatusTooManyRequests,
			se.code == http.StatusRequestTimeout,
			se.code >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// http.Client.Do wraps transport failures in *url.Error.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
