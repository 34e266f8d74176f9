// Package metrics exposes Prometheus collectors for the weather monitor.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncJobsActive        prometheus.Gauge
	syncRefreshTotal      *prometheus.CounterVec
	mergeWritesTotal      *prometheus.CounterVec
	resolveTotal          *prometheus.CounterVec
	sourceFetchDuration   *prometheus.HistogramVec
	reconcileRunsTotal    prometheus.Counter
	reconcileChangesTotal *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		syncJobsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "weather_sync_jobs_active",
				Help: "Number of locations with a running sync job.",
			},
		)

		syncRefreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_sync_refresh_total",
				Help: "Refresh cycles run by sync jobs, labeled by result.",
			},
			[]string{"result"},
		)

		mergeWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_merge_writes_total",
				Help: "Record writes committed by the merge engine, labeled by operation.",
			},
			[]string{"op"},
		)

		resolveTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_resolve_total",
				Help: "Nearest-time resolutions, labeled by origin of the returned record.",
			},
			[]string{"origin"},
		)

		sourceFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weather_source_fetch_duration_seconds",
				Help:    "Latency of external source fetches, labeled by provider and outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider", "outcome"},
		)

		reconcileRunsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "weather_reconcile_runs_total",
				Help: "Runs of the job reconciliation sweep.",
			},
		)

		reconcileChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_reconcile_changes_total",
				Help: "Jobs started or stopped by the reconciliation sweep.",
			},
			[]string{"action"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// SetActiveJobs records the current size of the task registry.
func SetActiveJobs(n int) {
	Init()
	syncJobsActive.Set(float64(n))
}

// IncRefresh counts one refresh cycle. result is one of ok, vanished, cancelled, source_error, merge_error, error.
func IncRefresh(result string) {
	Init()
	syncRefreshTotal.WithLabelValues(result).Inc()
}

// AddMergeWrites counts committed inserts and updates.
func AddMergeWrites(inserted, updated int) {
	Init()
	if inserted > 0 {
		mergeWritesTotal.WithLabelValues("insert").Add(float64(inserted))
	}
	if updated > 0 {
		mergeWritesTotal.WithLabelValues("update").Add(float64(updated))
	}
}

// IncResolve counts one successful nearest-time resolution.
func IncResolve(origin string) {
	Init()
	resolveTotal.WithLabelValues(origin).Inc()
}

// ObserveSourceFetch records how long a provider call took.
func ObserveSourceFetch(provider string, d time.Duration, err error) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sourceFetchDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

// IncReconcile counts one reconciliation sweep and the jobs it started and stopped.
func IncReconcile(started, stopped int) {
	Init()
	reconcileRunsTotal.Inc()
	if started > 0 {
		reconcileChangesTotal.WithLabelValues("start").Add(float64(started))
	}
	if stopped > 0 {
		reconcileChangesTotal.WithLabelValues("stop").Add(float64(stopped))
	}
}
