// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamsync_ingest_runs_total",
			Help: "Total ingestion runs by source and final status",
		},
		[]string{"source", "status"},
	)

	RecordsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamsync_ingest_records_fetched_total",
			Help: "Records fetched from providers by source",
		},
		[]string{"source"},
	)

	RecordsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamsync_ingest_records_stored_total",
			Help: "Records stored or refreshed by source",
		},
		[]string{"source"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamsync_ingest_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamsync_ingest_queue_depth",
			Help: "Tasks waiting in the ingestion queue",
		},
	)

	TrialsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamsync_trials_expired_total",
			Help: "Trial tenants flipped to expired by the sweep",
		},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RecordsFetched)
	prometheus.MustRegister(RecordsStored)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TrialsExpired)
}

// ObserveRun records one finished run.
func ObserveRun(source, status string, elapsed time.Duration) {
	RunsTotal.WithLabelValues(source, status).Inc()
	RunDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveRecords adds the fetched and stored tallies of one run.
func ObserveRecords(source string, fetched, stored int) {
	if fetched > 0 {
		RecordsFetched.WithLabelValues(source).Add(float64(fetched))
	}
	if stored > 0 {
		RecordsStored.WithLabelValues(source).Add(float64(stored))
	}
}
