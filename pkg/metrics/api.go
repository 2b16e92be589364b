package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics records requests served by the local storefront API.
type APIMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	if reg == nil {
		return &APIMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_requests_total",
		Help: "Requests served by the local API by route pattern, method and status.",
	}, []string{"route", "method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_api_request_duration_seconds",
		Help:    "Latency of local API requests by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	reg.MustRegister(requests, duration)
	return &APIMetrics{requests: requests, duration: duration}
}

func (m *APIMetrics) Observe(route, method string, status int, d time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(route, normalizeLabel(method), strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}
