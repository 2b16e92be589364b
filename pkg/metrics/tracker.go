package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrackerMetrics records order-tracking polls.
type TrackerMetrics struct {
	duration      *prometheus.HistogramVec
	polls         *prometheus.CounterVec
	statusChanges prometheus.Counter
	staleDropped  prometheus.Counter
}

// NewTrackerMetrics registers the tracker metrics on the provided registerer.
func NewTrackerMetrics(reg prometheus.Registerer) *TrackerMetrics {
	if reg == nil {
		return &TrackerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_tracker_poll_duration_seconds",
		Help:    "Duration of order lookups issued by the tracker.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_tracker_polls_total",
		Help: "Order lookups by mode (foreground, background) and result.",
	}, []string{"mode", "result"})
	statusChanges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_tracker_status_changes_total",
		Help: "Detected order status changes.",
	})
	staleDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_tracker_stale_responses_total",
		Help: "Lookup results discarded because a newer request was issued.",
	})
	reg.MustRegister(duration, polls, statusChanges, staleDropped)
	return &TrackerMetrics{
		duration:      duration,
		polls:         polls,
		statusChanges: statusChanges,
		staleDropped:  staleDropped,
	}
}

func (t *TrackerMetrics) ObservePoll(mode, result string, d time.Duration) {
	if t == nil || t.polls == nil {
		return
	}
	mode = normalizeLabel(mode)
	t.polls.WithLabelValues(mode, normalizeLabel(result)).Inc()
	t.duration.WithLabelValues(mode).Observe(d.Seconds())
}

func (t *TrackerMetrics) IncStatusChange() {
	if t == nil || t.statusChanges == nil {
		return
	}
	t.statusChanges.Inc()
}

func (t *TrackerMetrics) IncStaleDropped() {
	if t == nil || t.staleDropped == nil {
		return
	}
	t.staleDropped.Inc()
}
