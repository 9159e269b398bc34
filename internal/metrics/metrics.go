package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels queries that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels queries that failed (backend or validation issues).
	OutcomeError = "error"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skyobserv",
			Name:      "queries_total",
			Help:      "Total number of dashboard queries handled, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skyobserv",
			Name:      "query_seconds",
			Help:      "Dashboard query latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10},
		},
		[]string{"operation"},
	)

	syncEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skyobserv",
			Name:      "sync_events_total",
			Help:      "Query-sync bus events published, partitioned by event type.",
		},
		[]string{"type"},
	)
)

// Register attaches skyobserv collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		queriesTotal,
		queryDurationSeconds,
		syncEventsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveQuery records one query duration and outcome for an operation.
func ObserveQuery(operation string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	queriesTotal.WithLabelValues(operation, label).Inc()
	if duration < 0 {
		duration = 0
	}
	queryDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// CountSyncEvent increments the bus counter for an event type.
func CountSyncEvent(eventType string) {
	syncEventsTotal.WithLabelValues(eventType).Inc()
}
