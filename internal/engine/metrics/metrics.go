package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the consistency engine.
type Metrics struct {
	InterceptsTotal    *prometheus.CounterVec
	InterceptsInFlight prometheus.Gauge
	ViolationsDetected *prometheus.CounterVec
	CorrectionsApplied *prometheus.CounterVec
	CorrectionsFailed  *prometheus.CounterVec
	AuditCyclesTotal   *prometheus.CounterVec
	AuditCyclesSkipped prometheus.Counter
	AuditCycleDuration prometheus.Histogram
	AggressiveFixes    prometheus.Counter
	Stabilizations     prometheus.Counter
	UnresolvedAfterFix prometheus.Gauge
}

// New creates and registers all engine metrics.
func New() *Metrics {
	return &Metrics{
		InterceptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concordia_intercepts_total",
			Help: "Total number of reactive intercept calls, labeled by trigger",
		}, []string{"trigger"}),
		InterceptsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "concordia_intercepts_in_flight",
			Help: "Number of intercept calls currently validating",
		}),
		ViolationsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concordia_violations_detected_total",
			Help: "Total number of violations detected, labeled by kind",
		}, []string{"kind"}),
		CorrectionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concordia_corrections_applied_total",
			Help: "Total number of corrective actions applied, labeled by kind",
		}, []string{"kind"}),
		CorrectionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concordia_corrections_failed_total",
			Help: "Total number of corrective actions that failed, labeled by kind",
		}, []string{"kind"}),
		AuditCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concordia_audit_cycles_total",
			Help: "Total number of periodic audit cycles, labeled by result",
		}, []string{"result"}),
		AuditCyclesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concordia_audit_cycles_skipped_total",
			Help: "Audit cycles skipped because one was already running for the tenant",
		}),
		AuditCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "concordia_audit_cycle_duration_seconds",
			Help:    "Duration of full audit cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		AggressiveFixes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concordia_aggressive_fixes_total",
			Help: "Corrections that needed the aggressive escalation pass",
		}),
		Stabilizations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concordia_stabilizations_total",
			Help: "Last-resort stabilization records written; alert on increases",
		}),
		UnresolvedAfterFix: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "concordia_unresolved_violations",
			Help: "Violations still present after the last escalation pass",
		}),
	}
}
