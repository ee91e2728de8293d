package engine

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/agent-collab/internal/workflow"
)

const metricsNamespace = "agent_collab"

// Metrics records controller activity on a private prometheus registry. A
// nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transitions      *prometheus.CounterVec
	reviewRounds     *prometheus.CounterVec
	exchanges        *prometheus.CounterVec
	fragments        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	iteration        prometheus.Gauge
}

// NewMetrics creates and registers the controller collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "phase_transitions_total",
				Help:      "Persisted phase transitions",
			},
			[]string{"from", "to"},
		),
		reviewRounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "review_rounds_total",
				Help:      "Completed review rounds by outcome",
			},
			[]string{"outcome"},
		),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "agent_exchanges_total",
				Help:      "Agent exchanges by role and status",
			},
			[]string{"role", "status"},
		),
		fragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "agent_fragments_total",
				Help:      "Streamed output fragments by role",
			},
			[]string{"role"},
		),
		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "agent_exchange_duration_seconds",
				Help:      "Wall time of agent exchanges",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"role"},
		),
		iteration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "review_iteration",
				Help:      "Review rounds completed in the current collaboration",
			},
		),
	}
	registry.MustRegister(
		m.transitions,
		m.reviewRounds,
		m.exchanges,
		m.fragments,
		m.exchangeDuration,
		m.iteration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) transition(from, to workflow.Phase) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.Key(), to.Key()).Inc()
}

func (m *Metrics) reviewRound(approved bool) {
	if m == nil {
		return
	}
	outcome := "changes_requested"
	if approved {
		outcome = "approved"
	}
	m.reviewRounds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) exchange(role workflow.Role, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.exchanges.WithLabelValues(string(role), status).Inc()
	m.exchangeDuration.WithLabelValues(string(role)).Observe(elapsed.Seconds())
}

func (m *Metrics) fragment(role workflow.Role) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues(string(role)).Inc()
}

func (m *Metrics) setIteration(n int) {
	if m == nil {
		return
	}
	m.iteration.Set(float64(n))
}
