package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as nil.
type Metrics struct {
	published      *prometheus.CounterVec
	delivered      *prometheus.CounterVec
	deliveryFailed *prometheus.CounterVec
	rooms          prometheus.Gauge
	subscriptions  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrack",
			Name:      "events_published_total",
			Help:      "Events published to order rooms.",
		}, []string{"kind"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrack",
			Name:      "events_delivered_total",
			Help:      "Event copies handed to subscriber send buffers.",
		}, []string{"kind"}),
		deliveryFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetrack",
			Name:      "events_delivery_failed_total",
			Help:      "Event copies dropped because the subscriber was slow or closed.",
		}, []string{"kind"}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livetrack",
			Name:      "rooms",
			Help:      "Orders with at least one subscriber.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livetrack",
			Name:      "subscriptions",
			Help:      "Active (order, connection) subscriptions.",
		}),
	}
	for _, c := range []prometheus.Collector{m.published, m.delivered, m.deliveryFailed, m.rooms, m.subscriptions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observePublish(kind EventKind, delivered, failed int) {
	if m == nil {
		return
	}
	k := string(kind)
	m.published.WithLabelValues(k).Inc()
	m.delivered.WithLabelValues(k).Add(float64(delivered))
	m.deliveryFailed.WithLabelValues(k).Add(float64(failed))
}

func (m *Metrics) roomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) roomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) subscribed() {
	if m != nil {
		m.subscriptions.Inc()
	}
}

func (m *Metrics) unsubscribed() {
	if m != nil {
		m.subscriptions.Dec()
	}
}
