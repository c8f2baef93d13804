package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrAlreadyStarted is returned by Start on a crawler that was started before.
	ErrAlreadyStarted = errors.New("crawler already started")
	// ErrNotStarted is returned by AwaitCompletion before Start.
	ErrNotStarted = errors.New("crawler not started")
	// ErrRetryable marks fetch failures worth another attempt.
	ErrRetryable = errors.New("retryable fetch error")
)

// Error kinds recorded in metrics.
const (
	KindTimeout     = "timeout"
	KindNetwork     = "network"
	KindRedirect    = "redirect"
	KindClientError = "http_4xx"
	KindServerError = "http_5xx"
	KindRateLimited = "http_429"
	KindHTTPOther   = "http_other"
	KindPersistence = "persistence"
)

// FetchError describes why a fetch did not produce a usable page.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Retryable {
		errs = append(errs, ErrRetryable)
	}
	return errs
}

// classifyResponse returns nil for 2xx responses.
func classifyResponse(url string, resp *HTTPResponse) *FetchError {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	fe := &FetchError{URL: url, StatusCode: code, RetryAfter: resp.RetryAfter}
	switch {
	case code == 429:
		fe.Kind, fe.Retryable = KindRateLimited, true
	case code >= 500:
		fe.Kind, fe.Retryable = KindServerError, true
	case code >= 400:
		fe.Kind = KindClientError
	default:
		fe.Kind = KindHTTPOther
	}
	return fe
}

// classifyError maps a transport error. Cancellation by the caller is not
// retryable.
func classifyError(url string, err error) *FetchError {
	fe := &FetchError{URL: url, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		fe.Kind = KindNetwork
	case errors.Is(err, errTooManyRedirects):
		fe.Kind = KindRedirect
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind, fe.Retryable = KindTimeout, true
	default:
		fe.Kind, fe.Retryable = KindNetwork, true
	}
	return fe
}

// backoff returns base * 2^attempt, capped at one minute, or the server's
// Retry-After when that is longer.
func backoff(base time.Duration, attempt int, retryAfter time.Duration) time.Duration {
	const maxBackoff = time.Minute
	d := base
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	if retryAfter > d {
		d = min(retryAfter, maxBackoff)
	}
	return d
}
