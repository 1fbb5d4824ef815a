package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/trace"
)

// Session owns one SystemView and serializes every access to it.
// It is the boundary where engine assertion failures become errors.
type Session struct {
	mu          sync.Mutex
	id          string
	view        *graph.SystemView
	base        *slog.Logger
	logger      *slog.Logger
	batches     int
	lastApplied time.Time
	version     uint64
}

// SessionInfo describes a session for diagnostics.
type SessionInfo struct {
	ID          string      `json:"id"`
	Batches     int         `json:"batches"`
	LastApplied time.Time   `json:"last_applied,omitempty"`
	Stats       graph.Stats `json:"stats"`
}

// NewSession creates a session over a fresh view. A nil logger uses slog.Default().
func NewSession(meta *trace.MetaModel, logger *slog.Logger) (*Session, error) {
	if meta == nil {
		return nil, errors.New("meta-model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:   uuid.NewString(),
		view: graph.NewSystemView(meta),
		base: logger,
	}
	s.logger = logger.With("session_id", s.id)
	return s, nil
}

// ID returns the session identifier. It changes on Reset.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Apply ingests one batch. An engine assertion failure is returned as an
// error matching graph.ErrAssertion; events applied before it are kept.
func (s *Session) Apply(ctx context.Context, u trace.Update) (graph.Stats, error) {
	if err := ctx.Err(); err != nil {
		return graph.Stats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.guard("apply", func() {
		s.view.UpdateTraceData(u)
	})
	TraceviewApplySeconds.Observe(time.Since(start).Seconds())
	s.version++

	stats := s.view.Stats()
	TraceviewMaxMessageSends.Set(float64(stats.MaxMessageSends))
	if err != nil {
		TraceviewBatchesTotal.WithLabelValues("failed").Inc()
		return stats, err
	}

	TraceviewBatchesTotal.WithLabelValues("applied").Inc()
	TraceviewEventsTotal.WithLabelValues("activity").Add(float64(len(u.Activities)))
	TraceviewEventsTotal.WithLabelValues("passive_entity").Add(float64(len(u.PassiveEntities)))
	TraceviewEventsTotal.WithLabelValues("send").Add(float64(len(u.SendOps)))
	TraceviewEventsTotal.WithLabelValues("receive").Add(float64(len(u.ReceiveOps)))

	s.batches++
	s.lastApplied = time.Now().UTC()
	s.logger.Debug("trace_batch_applied",
		"events", u.Len(),
		"activities", stats.Activities,
		"passive_entities", stats.PassiveEntities,
		"message_pairs", stats.MessagePairs)
	return stats, nil
}

// Snapshot returns the visible graph.
func (s *Session) Snapshot() (*graph.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap *graph.Snapshot
	err := s.guard("snapshot", func() {
		snap = s.view.Snapshot()
	})
	if err != nil {
		return nil, err
	}
	s.observe(snap)
	return snap, nil
}

// Nodes returns the visible nodes of one kind.
func (s *Session) Nodes(kind trace.EntityRefKind) ([]graph.NodeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var views []graph.NodeView
	err := s.guard("nodes", func() {
		var nodes []graph.Node
		switch kind {
		case trace.KindActivity:
			nodes = s.view.ActivityNodes()
		case trace.KindPassiveEntity:
			nodes = s.view.EntityNodes()
		}
		views = make([]graph.NodeView, 0, len(nodes))
		for _, n := range nodes {
			views = append(views, s.view.NodeView(n))
		}
	})
	return views, err
}

// Links returns the assembled links.
func (s *Session) Links() ([]graph.LinkView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var views []graph.LinkView
	err := s.guard("links", func() {
		links := s.view.Links()
		views = make([]graph.LinkView, 0, len(links))
		for _, l := range links {
			views = append(views, graph.ViewOfLink(l))
		}
	})
	return views, err
}

// FindNode resolves a data id (of an entity or a group) to its visible node.
func (s *Session) FindNode(dataID string) (graph.NodeView, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		view  graph.NodeView
		found bool
	)
	err := s.guard("find_node", func() {
		n, ok := s.view.LookupNode(dataID)
		if ok {
			view, found = s.view.NodeView(n), true
		}
	})
	return view, found, err
}

// SetActivityRunning updates the running flag of an activity.
func (s *Session) SetActivityRunning(id trace.ID, running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.view.SetActivityRunning(id, running) {
		return false
	}
	s.version++
	return true
}

// Version increases whenever the visible graph may have changed.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Info reports the session counters.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:          s.id,
		Batches:     s.batches,
		LastApplied: s.lastApplied,
		Stats:       s.view.Stats(),
	}
}

// Reset discards all aggregated data and starts a new session id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.id
	s.view.Reset()
	s.id = uuid.NewString()
	s.batches = 0
	s.lastApplied = time.Time{}
	s.version++
	s.logger = s.base.With("session_id", s.id)
	s.logger.Info("session_reset", "previous_session_id", previous)

	TraceviewMaxMessageSends.Set(0)
	TraceviewVisibleNodes.Reset()
	TraceviewPromotedGroups.Reset()
}

// guard runs fn and converts an engine assertion panic into an error.
// Other panics propagate. Must be called with s.mu held.
func (s *Session) guard(op string, fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ae, ok := r.(*graph.AssertionError)
		if !ok {
			panic(r)
		}
		TraceviewAssertionFailuresTotal.Inc()
		s.logger.Error("engine_assertion_failed", "op", op, "error", ae.Error())
		err = fmt.Errorf("%s: %w", op, ae)
	}()
	fn()
	return nil
}

func (s *Session) observe(snap *graph.Snapshot) {
	counts := map[trace.EntityRefKind]int{trace.KindActivity: 0, trace.KindPassiveEntity: 0}
	for _, n := range snap.Nodes {
		counts[n.Kind]++
	}
	for kind, n := range counts {
		TraceviewVisibleNodes.WithLabelValues(string(kind)).Set(float64(n))
	}
	TraceviewPromotedGroups.WithLabelValues(string(trace.KindActivity)).Set(float64(snap.Stats.PromotedActivityGroups))
	TraceviewPromotedGroups.WithLabelValues(string(trace.KindPassiveEntity)).Set(float64(snap.Stats.PromotedPassiveGroups))
}
