package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/trace"
)

// ErrNotFound is returned when a requested node does not exist.
var ErrNotFound = errors.New("not found")

// Client is the traceview SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	retry    PushRetry
}

// NewClient creates a new traceview client.
// endpoint defaults to "http://127.0.0.1:8095" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8095"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry: DefaultPushRetry(),
	}
}

// SetRetry replaces the push retry policy. The zero PushRetry disables retrying.
func (c *Client) SetRetry(p PushRetry) { c.retry = p }

// Endpoint returns the daemon base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// PushTrace sends one batch, retrying per the client's PushRetry. Engine
// rejections (500) are never retried since the batch may have been partially
// applied.
func (c *Client) PushTrace(ctx context.Context, u trace.Update) (PushResult, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return PushResult{}, fmt.Errorf("failed to marshal update: %w", err)
	}

	var result PushResult
	for attempt := 0; ; attempt++ {
		err = c.do(ctx, http.MethodPost, "/v1/trace", body, &result)
		if err == nil || attempt >= c.retry.Attempts || !c.retry.retryable(err) {
			return result, err
		}
		select {
		case <-time.After(c.retry.delay(attempt, err)):
		case <-ctx.Done():
			return PushResult{}, ctx.Err()
		}
	}
}

// GetGraph fetches the full visible graph.
func (c *Client) GetGraph(ctx context.Context) (*graph.Snapshot, error) {
	var snap graph.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/graph", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetNodes fetches visible nodes. kind is "activity", "passive" or empty for both.
func (c *Client) GetNodes(ctx context.Context, kind string) ([]graph.NodeView, error) {
	path := "/v1/nodes"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var nodes []graph.NodeView
	if err := c.do(ctx, http.MethodGet, path, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// FindNode resolves a data id to the visible node showing it.
func (c *Client) FindNode(ctx context.Context, dataID string) (graph.NodeView, error) {
	var node graph.NodeView
	err := c.do(ctx, http.MethodGet, "/v1/node?id="+url.QueryEscape(dataID), nil, &node)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return graph.NodeView{}, fmt.Errorf("node %s: %w", dataID, ErrNotFound)
	}
	return node, err
}

// GetLinks fetches the assembled links.
func (c *Client) GetLinks(ctx context.Context) ([]graph.LinkView, error) {
	var links []graph.LinkView
	if err := c.do(ctx, http.MethodGet, "/v1/links", nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// GetStats fetches the aggregation counters.
func (c *Client) GetStats(ctx context.Context) (graph.Stats, error) {
	var stats graph.Stats
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &stats)
	return stats, err
}

// GetSession fetches session diagnostics.
func (c *Client) GetSession(ctx context.Context) (SessionInfo, error) {
	var info SessionInfo
	err := c.do(ctx, http.MethodGet, "/v1/session", nil, &info)
	return info, err
}

// GetReport downloads a report. reportType is "links" or "nodes", format "csv", "json" or "xlsx".
func (c *Client) GetReport(ctx context.Context, reportType, format string) ([]byte, error) {
	q := url.Values{}
	q.Set("type", reportType)
	if format != "" {
		q.Set("format", format)
	}
	var raw rawBody
	if err := c.do(ctx, http.MethodGet, "/v1/reports?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Reset discards all aggregated data on the daemon.
func (c *Client) Reset(ctx context.Context) (ResetResult, error) {
	var result ResetResult
	err := c.do(ctx, http.MethodPost, "/v1/reset", nil, &result)
	return result, err
}

// SetActivityRunning updates the running flag of an activity.
func (c *Client) SetActivityRunning(ctx context.Context, id trace.ID, running bool) error {
	body, err := json.Marshal(map[string]interface{}{"id": id, "running": running})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/v1/activity/running", body, nil)
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &status)
	return status, err
}

// rawBody receives a response without decoding it.
type rawBody []byte

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	var sent atomic.Bool
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { sent.Store(true) },
	})
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err, sent: sent.Load()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("unexpected_status_%d", resp.StatusCode)
		}
		return apiErr
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *rawBody:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		*v = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

// transportError is a failure without an HTTP response. sent records whether
// the request had been fully written before it.
type transportError struct {
	err  error
	sent bool
}

func (e *transportError) Error() string { return "daemon unreachable: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
