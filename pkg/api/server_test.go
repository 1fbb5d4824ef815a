package api

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/traceview/pkg/engine"
	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/trace"
)

const workersBatch = `{
  "activities": [
    {"id": 1, "name": "main", "type": 1, "running": true},
    {"id": 2, "name": "Worker", "type": 1, "creationActivity": 1},
    {"id": 3, "name": "Worker", "type": 1, "creationActivity": 1},
    {"id": 4, "name": "Worker", "type": 1, "creationActivity": 1},
    {"id": 5, "name": "Worker", "type": 1, "creationActivity": 1},
    {"id": 6, "name": "Worker", "type": 1, "creationActivity": 1}
  ],
  "passiveEntities": [
    {"id": 20, "type": 10, "origin": {"uri": "file:///app/Main.ns", "startLine": 4, "startColumn": 3, "charLength": 10}, "creationActivity": 1}
  ],
  "sendOps": [
    {"type": 1, "creationActivity": 2, "target": 3},
    {"type": 2, "creationActivity": 1, "target": 20}
  ]
}`

func newTestServer(t *testing.T) (*Server, *engine.Session) {
	t.Helper()
	sess, err := engine.NewSession(trace.ActorRuntimeMetaModel(), nil)
	require.NoError(t, err)
	return NewServer(sess, "", nil), sess
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSecureHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	withSecureHeaders(handler).ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for key, expected := range expectedHeaders {
		assert.Equal(t, expected, w.Header().Get(key), key)
	}
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestTraceIDHeader(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Len(t, w.Header().Get("X-Trace-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Trace-ID", "abc")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Trace-ID"))
}

func TestHandleTrace(t *testing.T) {
	s, sess := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/trace", workersBatch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[TraceResponse](t, w)
	assert.True(t, resp.Accepted)
	assert.Equal(t, sess.ID(), resp.SessionID)
	assert.Equal(t, 9, resp.Events)
	assert.Equal(t, 6, resp.Stats.Activities)
	assert.Equal(t, 2, resp.Stats.MessagesIngested)
}

func TestHandleTrace_JSONL(t *testing.T) {
	s, sess := newTestServer(t)

	body := `{"activities":[{"id":1,"name":"a","type":1}]}` + "\n" +
		`{"activities":[{"id":2,"name":"b","type":1,"creationActivity":1}]}`
	w := do(t, s, http.MethodPost, "/v1/trace", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, sess.Info().Batches)
}

func TestHandleTrace_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		status int
		code   string
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, "method_not_allowed"},
		{"malformed", http.MethodPost, `{"activities":`, http.StatusBadRequest, "invalid_json_body"},
		{"empty", http.MethodPost, "  ", http.StatusBadRequest, "invalid_json_body"},
		{"unknown target", http.MethodPost, `{"sendOps":[{"type":1,"creationActivity":1,"target":2}]}`, http.StatusInternalServerError, "engine_assertion_failed"},
		{"unknown op type", http.MethodPost, `{"activities":[{"id":1,"name":"a","type":1}],"sendOps":[{"type":99,"creationActivity":1,"target":1}]}`, http.StatusInternalServerError, "engine_assertion_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			w := do(t, s, tt.method, "/v1/trace", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestHandleGraph(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)

	w := do(t, s, http.MethodGet, "/v1/graph", "")
	require.Equal(t, http.StatusOK, w.Code)

	snap := decode[graph.Snapshot](t, w)
	require.Len(t, snap.Nodes, 3)
	assert.Equal(t, "ag1", snap.Nodes[1].DataID)
	assert.Equal(t, 5, snap.Nodes[1].Size)
	require.Len(t, snap.Links, 4)
	assert.Equal(t, graph.LinkView{Source: "ag1", Target: "ag1", MessageCount: 1}, snap.Links[0])
	assert.Equal(t, 1, snap.MaxMessageSends)
}

func TestHandleNodes(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)

	all := decode[[]graph.NodeView](t, do(t, s, http.MethodGet, "/v1/nodes", ""))
	assert.Len(t, all, 3)

	acts := decode[[]graph.NodeView](t, do(t, s, http.MethodGet, "/v1/nodes?kind=activity", ""))
	assert.Len(t, acts, 2)

	pes := decode[[]graph.NodeView](t, do(t, s, http.MethodGet, "/v1/nodes?kind=passive", ""))
	require.Len(t, pes, 1)
	assert.Equal(t, "file:///app/Main.ns:4:3:10", pes[0].Location)

	w := do(t, s, http.MethodGet, "/v1/nodes?kind=scope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleNode(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)

	w := do(t, s, http.MethodGet, "/v1/node?id=e3", "")
	require.Equal(t, http.StatusOK, w.Code)
	n := decode[graph.NodeView](t, w)
	assert.Equal(t, "ag1", n.DataID)
	assert.Equal(t, "#e2,#e3,#e4,#e5,#e6", n.Query)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/node?id=e99", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/node", "").Code)
}

func TestHandleLinksAndStats(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)

	links := decode[[]graph.LinkView](t, do(t, s, http.MethodGet, "/v1/links", ""))
	assert.Len(t, links, 4)

	stats := decode[graph.Stats](t, do(t, s, http.MethodGet, "/v1/stats", ""))
	assert.Equal(t, 6, stats.Activities)
	assert.Equal(t, 1, stats.PassiveEntities)

	info := decode[engine.SessionInfo](t, do(t, s, http.MethodGet, "/v1/session", ""))
	assert.Equal(t, 1, info.Batches)
}

func TestHandleStats_FreshSession(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)

	// No graph, node or link read before the stats.
	stats := decode[graph.Stats](t, do(t, s, http.MethodGet, "/v1/stats", ""))
	assert.Equal(t, 2, stats.ActivityGroups)
	assert.Equal(t, 1, stats.PromotedActivityGroups)
	assert.Equal(t, 0, stats.PromotedPassiveGroups)
}

func TestHandleReports(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)

	w := do(t, s, http.MethodGet, "/v1/reports?type=links", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "traceview_links_")

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5)

	w = do(t, s, http.MethodGet, "/v1/reports?type=nodes&format=json&kind=activity", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Len(t, decode[[]graph.NodeView](t, w), 2)
}

func TestHandleReports_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		target string
		code   string
	}{
		{"/v1/reports", "missing_type"},
		{"/v1/reports?type=usage", "invalid_report_type"},
		{"/v1/reports?type=links&format=xml", "invalid_format"},
		{"/v1/reports?type=nodes&kind=scope", "report_generation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, s, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestHandleReset(t *testing.T) {
	s, sess := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)
	before := sess.ID()

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/v1/reset", "").Code)

	w := do(t, s, http.MethodPost, "/v1/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ResetResponse](t, w)
	assert.Equal(t, "reset", resp.Status)
	assert.NotEqual(t, before, resp.SessionID)

	snap := decode[graph.Snapshot](t, do(t, s, http.MethodGet, "/v1/graph", ""))
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Links)
}

func TestHandleRunning(t *testing.T) {
	s, sess := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/trace", workersBatch).Code)

	w := do(t, s, http.MethodPost, "/v1/activity/running", `{"id":1,"running":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	n, ok, err := sess.FindNode("e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, n.Running)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/v1/activity/running", `{"id":77}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/activity/running", `nope`).Code)
}

func TestHandleStatic(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/", "").Code)

	s.SetStaticFS(fstest.MapFS{
		"index.html": {Data: []byte("<html>viewer</html>")},
		"viewer.js":  {Data: []byte("poll();")},
	})

	w := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "viewer")

	w = do(t, s, http.MethodGet, "/viewer.js", "")
	assert.Equal(t, "application/javascript", w.Header().Get("Content-Type"))
	assert.Equal(t, "poll();", w.Body.String())

	w = do(t, s, http.MethodGet, "/some/route", "")
	assert.Equal(t, "text/html", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/unknown", "").Code)
}

func TestRecovery(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_server_error", decode[ErrorResponse](t, w).Error)
}

func TestNewServer_Defaults(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, ":8095", s.Addr())
}

func TestHandleStream(t *testing.T) {
	s, _ := newTestServer(t)
	s.streamInterval = 10 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap graph.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Empty(t, snap.Nodes)

	post, err := http.Post(ts.URL+"/v1/trace", "application/json", strings.NewReader(workersBatch))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)

	require.NoError(t, conn.ReadJSON(&snap))
	assert.Len(t, snap.Nodes, 3)
	assert.Equal(t, 1, snap.Stats.PromotedActivityGroups)
}
