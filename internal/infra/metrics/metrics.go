package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agentmux"

// Metrics exposes Prometheus collectors for routing and collaboration runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	routerDecisions *prometheus.CounterVec
	responderCalls  *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the process-wide instance registered with the global
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNewMetrics registers the collectors with reg and panics on any
// registration error other than an identical collector already being present.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		routerDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "router_decisions_total",
				Help:      "Routing decisions by source, mode and confidence.",
			},
			[]string{"source", "mode", "confidence"},
		),
		responderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responder_calls_total",
				Help:      "Responder invocations by agent and outcome.",
			},
			[]string{"agent", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a full orchestration run.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode", "status"},
		),
	}

	m.routerDecisions = register(reg, m.routerDecisions)
	m.responderCalls = register(reg, m.responderCalls)
	m.runDuration = register(reg, m.runDuration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RecordDecision counts one routing decision.
func (m *Metrics) RecordDecision(source, mode, confidence string) {
	if m == nil {
		return
	}
	m.routerDecisions.WithLabelValues(source, mode, confidence).Inc()
}

// RecordResponderCall counts one responder call. outcome is "ok", "error"
// or "cancelled".
func (m *Metrics) RecordResponderCall(agent, outcome string) {
	if m == nil {
		return
	}
	m.responderCalls.WithLabelValues(agent, outcome).Inc()
}

// ObserveRun records the duration of one orchestration run.
func (m *Metrics) ObserveRun(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(mode, status).Observe(d.Seconds())
}
