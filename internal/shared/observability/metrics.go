package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shelltree_parsing_seconds",
		Help:    "Time spent parsing source text.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	FragmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelltree_fragments_total",
		Help: "Total number of fragments accepted into session buffers.",
	})

	FragmentBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shelltree_fragment_bytes",
		Help:    "Size of accepted fragments in bytes.",
		Buckets: prometheus.ExponentialBuckets(16, 4, 8),
	})

	BufferOverflowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelltree_buffer_overflows_total",
		Help: "Total number of fragments rejected because the session buffer was full.",
	})

	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelltree_parse_failures_total",
		Help: "Total number of parses where the engine produced no tree.",
	})

	InvalidTreesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelltree_invalid_trees_total",
		Help: "Total number of successful parses whose tree carries syntax errors.",
	})

	ChangedNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shelltree_changed_nodes",
		Help:    "Number of changed nodes reported per reparse.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 64, 256},
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shelltree_active_sessions",
		Help: "Current number of open parse sessions.",
	})

	FollowEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelltree_follow_events_total",
		Help: "Total number of file system events received by the follower.",
	})

	JournalWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelltree_journal_write_errors_total",
		Help: "Total number of change journal writes that failed.",
	})

	JournalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shelltree_journal_queue_depth",
		Help: "Journal entries waiting to be written.",
	})

	JournalDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shelltree_journal_dropped_total",
		Help: "Total number of journal entries dropped because the write queue was full.",
	})

	JournalBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shelltree_journal_batch_duration_seconds",
		Help:    "Time spent writing one batch of journal entries.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
