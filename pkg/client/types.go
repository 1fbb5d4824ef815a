package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rmax-ai/traceview/pkg/graph"
)

// Status is the daemon health response.
type Status struct {
	Status string `json:"status"`
}

// PushResult is the daemon's answer to a pushed trace batch.
type PushResult struct {
	Accepted  bool        `json:"accepted"`
	SessionID string      `json:"session_id"`
	Events    int         `json:"events"`
	Stats     graph.Stats `json:"stats"`
}

// ResetResult carries the id of the session started by a reset.
type ResetResult struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// SessionInfo mirrors the daemon's session diagnostics.
type SessionInfo struct {
	ID          string      `json:"id"`
	Batches     int         `json:"batches"`
	LastApplied string      `json:"last_applied,omitempty"`
	Stats       graph.Stats `json:"stats"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Details    string `json:"details,omitempty"`
	// RetryAfter is the wait requested by a Retry-After header, if any.
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("traceview: %d %s: %s", e.StatusCode, e.Code, e.Details)
	}
	return fmt.Sprintf("traceview: %d %s", e.StatusCode, e.Code)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
