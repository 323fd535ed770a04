package relay

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the relay's Prometheus collectors. Each relay owns its own
// registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	routed   *prometheus.CounterVec
	clients  prometheus.Gauge
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "appfw",
				Subsystem: "relay",
				Name:      "requests_total",
				Help:      "Requests handled by the relay.",
			},
			[]string{"type", "status"},
		),
		routed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "appfw",
				Subsystem: "relay",
				Name:      "events_delivered_total",
				Help:      "Events delivered to subscribers.",
			},
			[]string{"event"},
		),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "appfw",
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Attached clients.",
		}),
	}
	m.registry.MustRegister(m.requests, m.routed, m.clients)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) request(kind string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, strconv.Itoa(status)).Inc()
}

func (m *Metrics) delivered(event string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.routed.WithLabelValues(event).Add(float64(n))
}

func (m *Metrics) attached(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}
