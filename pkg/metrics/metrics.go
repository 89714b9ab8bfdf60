// Package metrics exposes Prometheus instrumentation for analysis runs,
// migration executions, and approval decisions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	analysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erpflow",
			Name:      "analysis_runs_total",
			Help:      "Total analysis runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	phaseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erpflow",
			Name:      "phase_failures_total",
			Help:      "Analyzer phase failures, partitioned by phase.",
		},
		[]string{"phase"},
	)

	phaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "erpflow",
			Name:      "phase_seconds",
			Help:      "Analyzer phase latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"phase"},
	)

	migrationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erpflow",
			Name:      "migration_runs_total",
			Help:      "Migration object runs, partitioned by final status.",
		},
		[]string{"status"},
	)

	approvalDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erpflow",
			Name:      "approval_decisions_total",
			Help:      "Approval workflow decisions, partitioned by decision.",
		},
		[]string{"decision"},
	)
)

// Register attaches erpflow collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysisRunsTotal,
		phaseFailuresTotal,
		phaseDurationSeconds,
		migrationRunsTotal,
		approvalDecisionsTotal,
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

// ObserveRun records an analysis run outcome.
func ObserveRun(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	analysisRunsTotal.WithLabelValues(outcome).Inc()
}

// ObservePhase records one analyzer phase execution.
func ObservePhase(phase string, duration time.Duration, failed bool) {
	if duration < 0 {
		duration = 0
	}
	phaseDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
	if failed {
		phaseFailuresTotal.WithLabelValues(phase).Inc()
	}
}

// ObserveMigration records a migration object run by final status.
func ObserveMigration(status string) {
	migrationRunsTotal.WithLabelValues(status).Inc()
}

// ObserveApproval records an approval decision (approved, rejected,
// cancelled, expired).
func ObserveApproval(decision string) {
	approvalDecisionsTotal.WithLabelValues(decision).Inc()
}
