package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics records cart mutations and persistence failures.
type CartMetrics struct {
	mutations       *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation.",
	}, []string{"op"})
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_persist_failures_total",
		Help: "Cart snapshots that could not be written to storage.",
	}, []string{"op"})
	reg.MustRegister(mutations, persistFailures)
	return &CartMetrics{mutations: mutations, persistFailures: persistFailures}
}

func (c *CartMetrics) IncMutation(op string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func (c *CartMetrics) IncPersistFailure(op string) {
	if c == nil || c.persistFailures == nil {
		return
	}
	c.persistFailures.WithLabelValues(normalizeLabel(op)).Inc()
}
