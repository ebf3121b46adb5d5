package event

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ctnfastfood/cart/internal/notify"
)

// Metrics is a notify.Observer that counts cart changes.
type Metrics struct {
	changes   *prometheus.CounterVec
	itemCount prometheus.Histogram
}

// NewMetrics registers the cart change metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		changes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_changes_total",
				Help: "Total number of cart mutations by action",
			},
			[]string{"action"},
		),
		itemCount: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cart_item_count",
				Help:    "Number of units in the cart after each mutation",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
	}
}

// OnChange implements notify.Observer.
func (m *Metrics) OnChange(_ context.Context, change notify.Change) {
	m.changes.WithLabelValues(change.Action).Inc()
	m.itemCount.Observe(float64(change.ItemCount))
}
