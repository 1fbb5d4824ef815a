package api

import (
	"github.com/rmax-ai/traceview/pkg/graph"
)

// TraceResponse is returned by POST /v1/trace
type TraceResponse struct {
	Accepted  bool        `json:"accepted"`
	SessionID string      `json:"session_id"`
	Events    int         `json:"events"`
	Stats     graph.Stats `json:"stats"`
}

// ResetResponse is returned by POST /v1/reset
type ResetResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// RunningRequest matches the POST /v1/activity/running body
type RunningRequest struct {
	ID      int64 `json:"id"`
	Running bool  `json:"running"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
