package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics exposes Prometheus collectors that report pipeline activity.
// A nil *Metrics is valid and records nothing, so tests and library callers
// can opt out without guarding every call site.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	spendTotal    *prometheus.CounterVec
	runsActive    prometheus.Gauge
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Supply a fresh registry in tests to avoid duplicate-registration panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "persona",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)
	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "persona",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Total number of stage executions that failed irrecoverably.",
		},
		[]string{"stage", "reason"},
	)
	spendTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "persona",
			Subsystem: "pipeline",
			Name:      "backend_spend_total",
			Help:      "Cumulative backend spend in the configured currency.",
		},
		[]string{"backend"},
	)
	runsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "persona",
			Subsystem: "pipeline",
			Name:      "runs_active",
			Help:      "Number of pipeline runs currently executing.",
		},
	)

	reg.MustRegister(stageDuration, stageFailures, spendTotal, runsActive)
	return &Metrics{
		stageDuration: stageDuration,
		stageFailures: stageFailures,
		spendTotal:    spendTotal,
		runsActive:    runsActive,
	}
}

func (m *Metrics) observeStage(stage StageName, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage), status).Observe(d.Seconds())
}

func (m *Metrics) recordFailure(stage StageName, reason string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(string(stage), reason).Inc()
}

func (m *Metrics) addSpend(backend string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	f, _ := amount.Float64()
	m.spendTotal.WithLabelValues(backend).Add(f)
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

func (m *Metrics) runFinished() {
	if m == nil {
		return
	}
	m.runsActive.Dec()
}
