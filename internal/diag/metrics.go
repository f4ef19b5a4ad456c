package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aidiag"

var (
	// JobsScheduled counts debounce timers armed and forced runs.
	// Labels: kind (debounce, force)
	JobsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "scheduled_total",
		Help:      "Analysis jobs scheduled",
	}, []string{"kind"})

	// JobOutcomes counts terminal actions.
	// Labels: outcome (ok, timeout, transport, envelope, payload, cancel, ...)
	JobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "outcomes_total",
		Help:      "Terminal outcomes of triggered analysis jobs",
	}, []string{"outcome"})

	StaleCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "stale_completions_total",
		Help:      "Transport completions discarded because the job had moved on",
	})

	RequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "request_duration_seconds",
		Help:      "Time from trigger to terminal action",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// FindingsPublished counts ranged findings handed to the sink.
	// Labels: severity
	FindingsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parser",
		Name:      "findings_published_total",
		Help:      "Findings published after range resolution",
	}, []string{"severity"})

	FindingsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "parser",
		Name:      "findings_dropped_total",
		Help:      "Findings skipped for invalid fields or unresolvable anchors",
	})
)
