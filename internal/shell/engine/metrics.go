package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// runsTotal counts installation runs by terminal status.
	// Labels: status (completed, failed, cancelled)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drydock",
		Subsystem: "engine",
		Name:      "runs_total",
		Help:      "Installation runs by terminal status",
	}, []string{"status"})

	// stageDuration measures the wall-clock time of one plan stage from
	// launch to gate.
	stageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "drydock",
		Subsystem: "engine",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of run stages",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	// healthPolls counts container inspections performed while waiting
	// for services to settle.
	healthPolls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drydock",
		Subsystem: "engine",
		Name:      "health_polls_total",
		Help:      "Container health inspections while waiting for services to settle",
	})

	// fallbacksApplied counts fallback strategies engaged after a service
	// failed its health gate.
	fallbacksApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drydock",
		Subsystem: "engine",
		Name:      "fallbacks_applied_total",
		Help:      "Fallback strategies engaged for failed services",
	})

	// servicesSettled counts service outcomes across all runs.
	// Labels: status (healthy, degraded, unhealthy, skipped)
	servicesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drydock",
		Subsystem: "engine",
		Name:      "services_settled_total",
		Help:      "Service outcomes across runs",
	}, []string{"status"})
)
