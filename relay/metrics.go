package relay

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are per server, each on its own registry.
type metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	fragments      *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Name:      "http_requests_total",
				Help:      "Total number of relay requests",
			},
			[]string{"path", "status"},
		),
		fragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Name:      "stream_fragments_total",
				Help:      "Fragments relayed to callers",
			},
			[]string{"model"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relay",
				Name:      "provider_errors_total",
				Help:      "Provider calls that failed or were rejected by the breaker",
			},
			[]string{"call"},
		),
	}
	m.registry.MustRegister(m.requests, m.fragments, m.providerErrors)
	return m
}

func (m *metrics) observeRequest(path string, status int) {
	m.requests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
