// Package metrics exposes Prometheus instrumentation for the sync
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	JobsClaimed   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsByStatus  *prometheus.GaugeVec
	TxPersisted   prometheus.Counter
	TxSkipped     prometheus.Counter
	ParseErrors   prometheus.Counter
	SyncDuration  prometheus.Histogram
}

// New creates the collector set on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "adasync_jobs_claimed_total",
			Help: "Sync jobs claimed by workers.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "adasync_jobs_completed_total",
			Help: "Sync jobs completed successfully.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "adasync_jobs_failed_total",
			Help: "Sync job attempts that ended in failure.",
		}),
		JobsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adasync_queue_jobs",
			Help: "Current queue depth by job status.",
		}, []string{"status"}),
		TxPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "adasync_transactions_persisted_total",
			Help: "Wallet transactions inserted into storage.",
		}),
		TxSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "adasync_transactions_skipped_total",
			Help: "Duplicate wallet transactions skipped on insert.",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "adasync_parse_errors_total",
			Help: "Per-transaction errors skipped during sync.",
		}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "adasync_sync_duration_seconds",
			Help:    "Wall-clock duration of completed sync jobs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

// Handler returns the HTTP handler serving the collector set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetQueueStats publishes a queue depth snapshot.
func (m *Metrics) SetQueueStats(pending, processing, completed, failed int64) {
	m.JobsByStatus.WithLabelValues("pending").Set(float64(pending))
	m.JobsByStatus.WithLabelValues("processing").Set(float64(processing))
	m.JobsByStatus.WithLabelValues("completed").Set(float64(completed))
	m.JobsByStatus.WithLabelValues("failed").Set(float64(failed))
}
