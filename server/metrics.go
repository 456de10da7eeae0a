package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chunkhub"

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Requests by route and status
	RequestsTotal *prometheus.CounterVec
	// Payload bytes written in responses
	ResponseBytes prometheus.Counter
	// Connections currently being served
	ActiveConnections prometheus.Gauge
	// Connections refused because the worker queue was full
	RejectedConnections prometheus.Counter
	// Time spent building a response
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// gets a fresh registry that also carries the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests handled, by route and status.",
			},
			[]string{"route", "status"},
		),
		ResponseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Payload bytes sent in responses.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connections currently being served.",
		}),
		RejectedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Connections closed because the worker queue was full.",
		}),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time spent building a response, in seconds.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.ResponseBytes,
		m.ActiveConnections,
		m.RejectedConnections,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) observe(route, status string, bytes int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.ResponseBytes.Add(float64(bytes))
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
