package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/traceview/pkg/trace"
)

func TestPushRetry_Delay(t *testing.T) {
	p := PushRetry{Attempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	unavailable := &APIError{StatusCode: http.StatusServiceUnavailable}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{40, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.delay(tt.attempt, unavailable), "attempt %d", tt.attempt)
	}

	throttled := &APIError{StatusCode: http.StatusTooManyRequests, RetryAfter: 300 * time.Millisecond}
	assert.Equal(t, 300*time.Millisecond, p.delay(3, throttled))

	throttled.RetryAfter = time.Hour
	assert.Equal(t, time.Second, p.delay(0, throttled))
}

func TestPushRetry_Retryable(t *testing.T) {
	p := DefaultPushRetry()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dial failed", &transportError{err: errors.New("connection refused")}, true},
		{"failed after write", &transportError{err: errors.New("connection reset"), sent: true}, false},
		{"canceled", &transportError{err: context.Canceled}, false},
		{"unavailable", &APIError{StatusCode: http.StatusServiceUnavailable}, true},
		{"throttled", &APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"engine rejection", &APIError{StatusCode: http.StatusInternalServerError}, false},
		{"bad request", &APIError{StatusCode: http.StatusBadRequest}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.retryable(tt.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, 2*time.Second, parseRetryAfter("2", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("-1", now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Zero(t, parseRetryAfter("", now))
}

func TestClient_PushTrace_HonorsRetryAfter(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"accepted":true,"session_id":"s1"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.SetRetry(PushRetry{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Second})

	start := time.Now()
	res, err := c.PushTrace(context.Background(), trace.Update{})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_PushTrace_NotRetriedAfterWrite(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.SetRetry(PushRetry{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	_, err := c.PushTrace(context.Background(), trace.Update{})
	var te *transportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.sent)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
