// Package telemetry exposes the engine's Prometheus metrics: orchestrator
// phase timings, event buffer depth, and retention actions.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine records (spec §4.10 phase
// timings, §4.9 buffer depth, §4.11 retention actions).
type Registry struct {
	PhaseDuration  *prometheus.HistogramVec
	PhaseOutcomes  *prometheus.CounterVec
	RunsActive     prometheus.Gauge
	RunsTotal      *prometheus.CounterVec
	BufferDepth    *prometheus.GaugeVec
	RetentionEvict *prometheus.CounterVec
}

// NewRegistry builds and registers every metric with the default
// Prometheus registerer.
func NewRegistry() *Registry {
	r := &Registry{
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_phase_duration_seconds",
				Help:    "Duration of each orchestrator phase in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"phase", "result"},
		),
		PhaseOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_phase_outcomes_total",
				Help: "Total orchestrator phase completions by result",
			},
			[]string{"phase", "result"},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_runs_active",
				Help: "Number of runs currently in flight",
			},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Total runs submitted, by terminal status",
			},
			[]string{"status"},
		),
		BufferDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backtest_event_buffer_depth",
				Help: "Number of events currently retained in a run's buffer",
			},
			[]string{"run_hash"},
		),
		RetentionEvict: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_retention_evictions_total",
				Help: "Total runs demoted from full to manifest_only",
			},
			[]string{"strategy_id"},
		),
	}

	prometheus.MustRegister(
		r.PhaseDuration,
		r.PhaseOutcomes,
		r.RunsActive,
		r.RunsTotal,
		r.BufferDepth,
		r.RetentionEvict,
	)

	return r
}

// PhaseTimer times one orchestrator phase.
type PhaseTimer struct {
	registry *Registry
	phase    string
	start    time.Time
}

// StartPhase begins timing phase.
func (r *Registry) StartPhase(phase string) *PhaseTimer {
	return &PhaseTimer{registry: r, phase: phase, start: time.Now()}
}

// Stop records the phase's duration and outcome.
func (t *PhaseTimer) Stop(result string) {
	duration := time.Since(t.start)
	t.registry.PhaseDuration.WithLabelValues(t.phase, result).Observe(duration.Seconds())
	t.registry.PhaseOutcomes.WithLabelValues(t.phase, result).Inc()
}

// RecordRunStarted increments the active-runs gauge.
func (r *Registry) RecordRunStarted() {
	r.RunsActive.Inc()
}

// RecordRunTerminal decrements the active-runs gauge and counts the
// terminal status.
func (r *Registry) RecordRunTerminal(status string) {
	r.RunsActive.Dec()
	r.RunsTotal.WithLabelValues(status).Inc()
}

// SetBufferDepth reports the current event count for runHash.
func (r *Registry) SetBufferDepth(runHash string, depth int) {
	r.BufferDepth.WithLabelValues(runHash).Set(float64(depth))
}

// RecordRetentionEviction counts one run demoted for strategyID.
func (r *Registry) RecordRetentionEviction(strategyID string) {
	r.RetentionEvict.WithLabelValues(strategyID).Inc()
}

// Handler returns the Prometheus scrape endpoint handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
