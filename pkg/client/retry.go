package client

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PushRetry controls how PushTrace repeats a batch. A push is not idempotent:
// a batch applied twice doubles its message counts. Only failures showing the
// daemon never ingested the batch are retried: the connection failed before
// the request was written, or a 429/502/503/504 answer came back.
type PushRetry struct {
	Attempts  int           // retries after the first push; 0 disables
	BaseDelay time.Duration // wait before the first retry, doubled after each
	MaxDelay  time.Duration // cap on any wait, including Retry-After
}

// DefaultPushRetry retries three times starting at 100ms, waiting at most 5s.
func DefaultPushRetry() PushRetry {
	return PushRetry{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// retryable reports whether err proves the batch was not ingested.
func (p PushRetry) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return !te.sent
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// delay is the wait before retry n (0-based). A Retry-After sent with err
// takes precedence over the doubling schedule.
func (p PushRetry) delay(n int, err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return p.clamp(apiErr.RetryAfter)
	}
	d := p.BaseDelay
	for i := 0; i < n && d < p.MaxDelay; i++ {
		d *= 2
	}
	return p.clamp(d)
}

func (p PushRetry) clamp(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}

// parseRetryAfter reads a Retry-After value in seconds or as an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
