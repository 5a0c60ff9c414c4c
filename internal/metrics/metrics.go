// Package metrics registers the prometheus series this repository
// exposes on /metrics, per SPEC_FULL.md §11.6. The teacher declared
// github.com/prometheus/client_golang in its go.mod but never registered
// a single real series; these are its first concrete collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the counters/histogram/gauge. main.go feeds the run and
// trade series through the API server's OnRunComplete hook; nothing in
// this repository sets ActiveWorkers.
type Registry struct {
	RunsTotal       *prometheus.CounterVec
	DurationSeconds prometheus.Histogram
	ActiveWorkers   prometheus.Gauge
	TradesTotal     *prometheus.CounterVec
}

// NewRegistry registers every series against reg and returns the handles.
// main.go passes prometheus.DefaultRegisterer, which promhttp.Handler
// serves on /metrics; tests pass a fresh prometheus.NewRegistry() each, so
// repeated test runs never hit prometheus's duplicate-registration panic.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Total number of completed backtest runs, labeled by termination reason.",
		}, []string{"termination_reason"}),
		DurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_duration_seconds",
			Help:    "Wall-clock duration of a single RunBacktest call.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_active_workers",
			Help: "Number of worker-pool goroutines currently executing a backtest task.",
		}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Total number of closed trades across all runs, labeled by exit reason.",
		}, []string{"exit_reason"}),
	}
}

// ObserveRun records one completed run's termination reason, duration,
// and per-trade exit reasons.
func (r *Registry) ObserveRun(termination string, duration time.Duration, exitReasons []string) {
	r.RunsTotal.WithLabelValues(termination).Inc()
	r.DurationSeconds.Observe(duration.Seconds())
	for _, reason := range exitReasons {
		r.TradesTotal.WithLabelValues(reason).Inc()
	}
}
