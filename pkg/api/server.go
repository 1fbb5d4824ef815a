package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/traceview/pkg/engine"
	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/ingest"
	"github.com/rmax-ai/traceview/pkg/reports"
	"github.com/rmax-ai/traceview/pkg/trace"
)

// maxTraceBody bounds a single POST /v1/trace payload.
const maxTraceBody = 32 << 20

// Server encapsulates the HTTP API server
type Server struct {
	session  *engine.Session
	server   *http.Server
	logger   *slog.Logger
	staticFS fs.FS

	// streamInterval is how often /v1/stream checks the session for changes.
	streamInterval time.Duration
}

// NewServer creates a new API server over a session. A nil logger uses slog.Default().
func NewServer(session *engine.Session, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		session:        session,
		logger:         logger,
		streamInterval: 500 * time.Millisecond,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/trace", s.handleTrace)
	mux.HandleFunc("/v1/graph", s.handleGraph)
	mux.HandleFunc("/v1/nodes", s.handleNodes)
	mux.HandleFunc("/v1/node", s.handleNode)
	mux.HandleFunc("/v1/links", s.handleLinks)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/session", s.handleSession)
	mux.HandleFunc("/v1/reports", s.handleReports)
	mux.HandleFunc("/v1/reset", s.handleReset)
	mux.HandleFunc("/v1/activity/running", s.handleRunning)
	mux.HandleFunc("/v1/stream", s.handleStream)

	// Static viewer (catch-all)
	mux.Handle("/", s.handleStatic())

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	if addr == "" {
		addr = ":8095"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetStaticFS sets the filesystem for serving the web viewer
func (s *Server) SetStaticFS(fsys fs.FS) {
	s.staticFS = fsys
}

// Handler exposes the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	s.logger.Info("server_starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleTrace ingests one batch, or an array / JSONL stream of batches.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTraceBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}

	updates, err := decodeTraceBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err.Error())
		return
	}

	var (
		stats  graph.Stats
		events int
	)
	for i, u := range updates {
		stats, err = s.session.Apply(r.Context(), u)
		if err != nil {
			s.writeApplyError(w, r, i, err)
			return
		}
		events += u.Len()
	}

	writeJSON(w, http.StatusOK, TraceResponse{
		Accepted:  true,
		SessionID: s.session.ID(),
		Events:    events,
		Stats:     stats,
	})
}

func decodeTraceBody(body []byte) ([]trace.Update, error) {
	updates, err := ingest.DecodeUpdates(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, errors.New("empty body")
	}
	return updates, nil
}

func (s *Server) writeApplyError(w http.ResponseWriter, r *http.Request, batch int, err error) {
	details := fmt.Sprintf("batch %d: %v", batch, err)
	switch {
	case errors.Is(err, graph.ErrAssertion):
		s.logger.Error("trace_rejected", "trace_id", getTraceID(r.Context()), "batch", batch, "error", err)
		writeError(w, http.StatusInternalServerError, "engine_assertion_failed", details)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_cancelled", details)
	default:
		writeError(w, http.StatusInternalServerError, "apply_failed", details)
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	snap, err := s.session.Snapshot()
	if err != nil {
		s.logger.Error("failed_to_build_graph", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "graph_not_available", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	k := r.URL.Query().Get("kind")
	if k == "" {
		snap, err := s.session.Snapshot()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "graph_not_available", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snap.Nodes)
		return
	}

	kind, err := reports.ParseKind(k)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}
	nodes, err := s.session.Nodes(kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "graph_not_available", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// handleNode resolves ?id=<data id> to the visible node that shows it.
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id", "")
		return
	}
	node, ok, err := s.session.FindNode(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "graph_not_available", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "node_not_found", id)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	links, err := s.session.Links()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "graph_not_available", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Info().Stats)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Info())
}

// handleReports generates and streams reports.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		writeError(w, http.StatusBadRequest, "missing_type", "")
		return
	}

	format := reports.ReportFormat(q.Get("format"))
	if format == "" {
		format = reports.ReportFormatCSV
	}
	if !format.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_format", string(format))
		return
	}

	params := reports.ReportParams{
		Format:  format,
		Filters: make(map[string]interface{}),
	}
	if kind := q.Get("kind"); kind != "" {
		params.Filters["kind"] = kind
	}
	if minCount := q.Get("min_count"); minCount != "" {
		params.Filters["min_count"] = minCount
	}

	gen, err := reports.NewReportGenerator(reportType, s.session)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_report_type", err.Error())
		return
	}

	reader, err := gen.Generate(r.Context(), params)
	if err != nil {
		s.logger.Error("failed_to_generate_report", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusBadRequest, "report_generation_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", reports.ContentType(format))
	filename := fmt.Sprintf("traceview_%s_%d.%s", reportType, time.Now().Unix(), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed_to_stream_report", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	s.session.Reset()
	writeJSON(w, http.StatusOK, ResetResponse{Status: "reset", SessionID: s.session.ID()})
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	var req RunningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err.Error())
		return
	}
	if !s.session.SetActivityRunning(trace.ID(req.ID), req.Running) {
		writeError(w, http.StatusNotFound, "activity_not_found", fmt.Sprintf("%d", req.ID))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"updated"}`))
}

// handleStatic serves the embedded viewer with index.html fallback
func (s *Server) handleStatic() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.staticFS == nil || strings.HasPrefix(r.URL.Path, "/v1/") {
			http.NotFound(w, r)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/")
		if path != "" {
			if file, err := s.staticFS.Open(path); err == nil {
				defer file.Close()
				if stat, err := file.Stat(); err == nil && !stat.IsDir() {
					switch {
					case strings.HasSuffix(path, ".css"):
						w.Header().Set("Content-Type", "text/css")
					case strings.HasSuffix(path, ".js"):
						w.Header().Set("Content-Type", "application/javascript")
					case strings.HasSuffix(path, ".html"):
						w.Header().Set("Content-Type", "text/html")
					}
					io.Copy(w, file)
					return
				}
			}
		}

		indexFile, err := s.staticFS.Open("index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer indexFile.Close()
		w.Header().Set("Content-Type", "text/html")
		io.Copy(w, indexFile)
	})
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
