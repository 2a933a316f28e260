package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatch counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	shortfalls  prometheus.Counter
	assignments *prometheus.CounterVec
	cache       *prometheus.CounterVec
}

func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Appointment transitions by action and outcome.",
		}, []string{"action", "outcome"}),
		shortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_shortfalls_total",
			Help:      "Material deductions rejected for insufficient stock.",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Driver assignment attempts by outcome.",
		}, []string{"outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Read-through cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.transitions, m.shortfalls, m.assignments, m.cache)
	return m
}

func (m *Metrics) Transition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Shortfall() {
	if m == nil {
		return
	}
	m.shortfalls.Inc()
}

func (m *Metrics) Assignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Cache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}
