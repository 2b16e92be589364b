package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPClientMetrics records outbound calls to the ordering backend.
type HTTPClientMetrics struct {
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPClientMetrics registers the outbound HTTP metrics on the provided registerer.
func NewHTTPClientMetrics(reg prometheus.Registerer) *HTTPClientMetrics {
	if reg == nil {
		return &HTTPClientMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_backend_attempts_total",
		Help: "Outbound backend request attempts by route and outcome.",
	}, []string{"route", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_backend_retries_total",
		Help: "Outbound backend requests that were retried.",
	}, []string{"route"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_backend_request_duration_seconds",
		Help:    "End-to-end duration of backend calls including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	reg.MustRegister(attempts, retries, duration)
	return &HTTPClientMetrics{
		attempts: attempts,
		retries:  retries,
		duration: duration,
	}
}

// IncAttempt counts a single attempt. outcome is a status class such as
// "2xx", "5xx" or "error".
func (m *HTTPClientMetrics) IncAttempt(route, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(route), normalizeLabel(outcome)).Inc()
}

func (m *HTTPClientMetrics) IncRetry(route string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(route)).Inc()
}

func (m *HTTPClientMetrics) ObserveDuration(route string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(route)).Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
