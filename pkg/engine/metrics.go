package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TraceviewBatchesTotal counts trace batches by outcome
	TraceviewBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceview_batches_total",
			Help: "Total number of trace batches applied",
		},
		[]string{"outcome"},
	)

	// TraceviewEventsTotal counts ingested trace events per kind
	TraceviewEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceview_events_total",
			Help: "Total number of trace events ingested",
		},
		[]string{"kind"},
	)

	// TraceviewAssertionFailuresTotal counts sequencing bugs caught at the engine boundary
	TraceviewAssertionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traceview_assertion_failures_total",
			Help: "Total number of engine assertion failures",
		},
	)

	// TraceviewVisibleNodes tracks the size of the last rendered node set
	TraceviewVisibleNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traceview_visible_nodes",
			Help: "Number of visible nodes in the last snapshot",
		},
		[]string{"kind"},
	)

	// TraceviewPromotedGroups tracks groups collapsed into a single node
	TraceviewPromotedGroups = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traceview_promoted_groups",
			Help: "Number of groups promoted to a group node",
		},
		[]string{"kind"},
	)

	// TraceviewMaxMessageSends tracks the heaviest entity pair
	TraceviewMaxMessageSends = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "traceview_max_message_sends",
			Help: "Largest cumulative message count between two entities",
		},
	)

	// TraceviewApplySeconds observes how long a batch takes to apply
	TraceviewApplySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "traceview_apply_seconds",
			Help:    "Time spent applying a trace batch",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(TraceviewBatchesTotal)
	prometheus.MustRegister(TraceviewEventsTotal)
	prometheus.MustRegister(TraceviewAssertionFailuresTotal)
	prometheus.MustRegister(TraceviewVisibleNodes)
	prometheus.MustRegister(TraceviewPromotedGroups)
	prometheus.MustRegister(TraceviewMaxMessageSends)
	prometheus.MustRegister(TraceviewApplySeconds)
}
