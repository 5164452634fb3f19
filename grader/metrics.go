package grader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_runs_total",
			Help: "Total number of finished test runs and submissions",
		},
		[]string{"kind", "outcome"},
	)

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_runs",
		Help: "Number of test runs and submissions in progress",
	})

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arena_run_duration_seconds",
			Help:    "Duration of test runs and submissions in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
)
