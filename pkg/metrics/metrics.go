package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Engine metrics
	DetectorPasses   prometheus.Counter
	DelaysDetected   *prometheus.CounterVec
	CascadeDepth     prometheus.Histogram
	Reassignments    *prometheus.CounterVec
	PlannerConflicts prometheus.Counter

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// New registers all application metrics with the default registry.
func New(namespace string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, namespace)
}

// NewWith registers metrics against an explicit registerer.
func NewWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DetectorPasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_passes_total",
			Help:      "Total number of delay detector passes",
		}),
		DelaysDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delays_detected_total",
			Help:      "Total number of delay records detected",
		}, []string{"business_id"}),
		CascadeDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_depth",
			Help:      "Number of appointments touched per propagation cascade",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		Reassignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reassignments_total",
			Help:      "Planner commit outcomes",
		}, []string{"outcome"}),
		PlannerConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_conflicts_total",
			Help:      "Optimistic concurrency conflicts hit during commit",
		}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}
