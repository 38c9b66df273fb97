package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend metrics
	EntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eidetica_entries_total",
			Help: "Total number of entries stored in the backend",
		},
	)

	DatabasesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eidetica_databases_total",
			Help: "Total number of distinct databases (root entries) known to this instance",
		},
	)

	TipsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eidetica_tips_total",
			Help: "Current number of tips per database",
		},
		[]string{"root_id"},
	)

	StateCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eidetica_state_cache_hits_total",
			Help: "Total number of CRDT state cache hits",
		},
	)

	StateCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eidetica_state_cache_misses_total",
			Help: "Total number of CRDT state cache misses",
		},
	)

	ComputeStateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eidetica_compute_state_duration_seconds",
			Help:    "Time taken to compute CRDT state for a tip set",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transaction metrics
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eidetica_commits_total",
			Help: "Total number of transaction commits by outcome",
		},
		[]string{"outcome"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eidetica_commit_duration_seconds",
			Help:    "Time taken to commit a transaction end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eidetica_validation_failures_total",
			Help: "Total number of entries rejected by auth validation, by reason",
		},
		[]string{"reason"},
	)

	// Sync metrics
	SyncRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eidetica_sync_rounds_total",
			Help: "Total number of sync rounds by outcome",
		},
		[]string{"outcome"},
	)

	SyncRoundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eidetica_sync_round_duration_seconds",
			Help:    "Duration of a sync round with a peer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"peer_id"},
	)

	RetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eidetica_retry_queue_depth",
			Help: "Current number of peers awaiting a retried sync attempt",
		},
	)

	EntriesSyncedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eidetica_entries_synced_total",
			Help: "Total number of entries exchanged with peers, by direction",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(EntriesTotal)
	prometheus.MustRegister(DatabasesTotal)
	prometheus.MustRegister(TipsTotal)
	prometheus.MustRegister(StateCacheHits)
	prometheus.MustRegister(StateCacheMisses)
	prometheus.MustRegister(ComputeStateDuration)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(ValidationFailuresTotal)
	prometheus.MustRegister(SyncRoundsTotal)
	prometheus.MustRegister(SyncRoundDuration)
	prometheus.MustRegister(RetryQueueDepth)
	prometheus.MustRegister(EntriesSyncedTotal)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer started at the current time.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
