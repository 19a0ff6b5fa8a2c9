package runtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors the runtime updates. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions       *prometheus.CounterVec
	gatewayCalls      *prometheus.CounterVec
	transcriptRecords *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatflow_transitions_total",
				Help: "Session load and submit results by outcome.",
			},
			[]string{"outcome"},
		),
		gatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatflow_gateway_calls_total",
				Help: "Side-effect gateway calls by result.",
			},
			[]string{"result"},
		),
		transcriptRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatflow_transcript_records_total",
				Help: "Transcript records handed to the sink by result.",
			},
			[]string{"result"},
		),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatflow_active_sessions",
			Help: "Sessions currently held by the session manager.",
		}),
	}

	reg.MustRegister(m.transitions, m.gatewayCalls, m.transcriptRecords, m.activeSessions)
	return m
}

func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) observeGateway(result string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(result).Inc()
}

func (m *Metrics) observeTranscript(result string) {
	if m == nil {
		return
	}
	m.transcriptRecords.WithLabelValues(result).Inc()
}

func (m *Metrics) setActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
