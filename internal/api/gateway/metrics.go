package gateway

import "github.com/prometheus/client_golang/prometheus"

// Metrics is safe to use as nil.
type Metrics struct {
	connections prometheus.Gauge
	inbound     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livetrack",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrack",
			Subsystem: "ws",
			Name:      "inbound_messages_total",
			Help:      "Frames received from clients by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrack",
			Subsystem: "ws",
			Name:      "rejected_messages_total",
			Help:      "Frames answered with an error event, by code.",
		}, []string{"code"}),
	}
	for _, c := range []prometheus.Collector{m.connections, m.inbound, m.rejected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) received(kind string) {
	if m != nil {
		m.inbound.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) rejectedWith(code string) {
	if m != nil {
		m.rejected.WithLabelValues(code).Inc()
	}
}
