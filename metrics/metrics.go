// Package metrics exposes Prometheus collectors for the dispatcher and the
// agent registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grantmesh"

// OutcomeOK labels successful calls. Failures are labelled with their
// protocol error category.
const OutcomeOK = "ok"

// Metrics groups every collector on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	agents    prometheus.Gauge
	decisions *prometheus.CounterVec
	events    *prometheus.CounterVec
	reaped    prometheus.Counter
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_calls_total",
			Help:      "Dispatched protocol calls by method, target and outcome.",
		}, []string{"method", "target", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Latency of dispatched protocol calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"method", "target"}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_connected",
			Help:      "Agents currently present in the registry.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voting_results_total",
			Help:      "Voting result recomputations by approval outcome.",
		}, []string{"approved"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_total",
			Help:      "Published feed events by type.",
		}, []string{"type"}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agents_reaped_total",
			Help:      "Agents removed for inactivity.",
		}),
	}
	m.registry.MustRegister(
		m.calls, m.latency, m.agents, m.decisions, m.events, m.reaped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCall records one dispatched call.
func (m *Metrics) ObserveCall(method, target, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(method, target, outcome).Inc()
	m.latency.WithLabelValues(method, target).Observe(d.Seconds())
}

// SetAgents records the current registry size.
func (m *Metrics) SetAgents(n int) {
	if m == nil {
		return
	}
	m.agents.Set(float64(n))
}

// ObserveVotingResult counts a consensus recomputation.
func (m *Metrics) ObserveVotingResult(approved bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(strconv.FormatBool(approved)).Inc()
}

// ObserveEvent counts a published feed event.
func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// ObserveReaped counts agents removed by an idle sweep.
func (m *Metrics) ObserveReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(float64(n))
}
