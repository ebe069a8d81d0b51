// Package metrics exposes Prometheus collectors for matchmaking and duel sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "codeclash"

// Metrics 듀얼 서비스 메트릭 모음
// nil 수신자에 대한 모든 메서드 호출은 무시된다.
type Metrics struct {
	queueSize       prometheus.Gauge
	pairings        prometheus.Counter
	pairingFailures prometheus.Counter
	activeSessions  prometheus.Gauge
	finalizations   *prometheus.CounterVec
	reaped          *prometheus.CounterVec
	inboundEvents   *prometheus.CounterVec
	evaluations     *prometheus.HistogramVec
	persistRetries  prometheus.Counter
}

// New 메트릭 생성 및 등록
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "queue_size",
			Help:      "Number of users currently waiting in the matchmaking queue.",
		}),
		pairings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "pairings_total",
			Help:      "Pairings that produced a session.",
		}),
		pairingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matchmaking",
			Name:      "pairing_failures_total",
			Help:      "Pairings rolled back because the session could not be created.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "duel",
			Name:      "sessions_in_memory",
			Help:      "Sessions currently held in the in-memory session store.",
		}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "duel",
			Name:      "finalizations_total",
			Help:      "Finalized sessions by reason.",
		}, []string{"reason"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "reaped_total",
			Help:      "Sessions reaped by the cleanup sweeper by action.",
		}, []string{"action"}),
		inboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "events_total",
			Help:      "Inbound realtime events by type and result.",
		}, []string{"type", "result"}),
		evaluations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "judge",
			Name:      "evaluation_seconds",
			Help:      "Latency of problem provider evaluations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind", "result"}),
		persistRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "duel",
			Name:      "persist_retries_total",
			Help:      "Finalization persistence attempts that had to be retried.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.queueSize,
			m.pairings,
			m.pairingFailures,
			m.activeSessions,
			m.finalizations,
			m.reaped,
			m.inboundEvents,
			m.evaluations,
			m.persistRetries,
		)
	}

	return m
}

func (m *Metrics) SetQueueSize(n int) {
	if m == nil {
		return
	}
	m.queueSize.Set(float64(n))
}

func (m *Metrics) PairingSucceeded() {
	if m == nil {
		return
	}
	m.pairings.Inc()
}

func (m *Metrics) PairingFailed() {
	if m == nil {
		return
	}
	m.pairingFailures.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SessionFinalized reason: correct_submission, concede, timeout, inactivity
func (m *Metrics) SessionFinalized(reason string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(reason).Inc()
}

// SessionReaped action: cancelled, finalized, evicted, orphan
func (m *Metrics) SessionReaped(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) EventHandled(eventType, result string) {
	if m == nil {
		return
	}
	m.inboundEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) ObserveEvaluation(kind, result string, seconds float64) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(kind, result).Observe(seconds)
}

func (m *Metrics) PersistRetried() {
	if m == nil {
		return
	}
	m.persistRetries.Inc()
}
