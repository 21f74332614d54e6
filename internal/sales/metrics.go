package sales

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockplus/stockplus/internal/platform/httpx"
)

// Metrics counts sale outcomes. A nil *Metrics records nothing.
type Metrics struct {
	checkouts     *prometheus.CounterVec
	cancellations prometheus.Counter
	itemChanges   *prometheus.CounterVec
	unitsSold     prometheus.Counter
	lowStock      prometheus.Counter
	sideEffects   *prometheus.CounterVec
}

// NewMetrics registers the sales collectors.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockplus_sales_checkouts_total",
			Help: "Checkout attempts partitioned by outcome.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockplus_sales_cancellations_total",
			Help: "Sales cancelled.",
		}),
		itemChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockplus_sale_item_changes_total",
			Help: "Item mutations on existing sales.",
		}, []string{"op"}),
		unitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockplus_sales_units_total",
			Help: "Units sold through checkout.",
		}),
		lowStock: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockplus_sales_low_stock_detected_total",
			Help: "Products observed at or below their low-stock threshold after a sale.",
		}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockplus_sales_side_effect_failures_total",
			Help: "Post-commit side effects that failed, by kind.",
		}, []string{"kind"}),
	}
	registerer.MustRegister(m.checkouts, m.cancellations, m.itemChanges, m.unitsSold, m.lowStock, m.sideEffects)
	return m
}

func (m *Metrics) checkout(outcome string, units int) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
	if units > 0 {
		m.unitsSold.Add(float64(units))
	}
}

func (m *Metrics) cancelled() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

func (m *Metrics) itemChanged(op string) {
	if m == nil {
		return
	}
	m.itemChanges.WithLabelValues(op).Inc()
}

func (m *Metrics) lowStockDetected(n int) {
	if m == nil || n == 0 {
		return
	}
	m.lowStock.Add(float64(n))
}

func (m *Metrics) sideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(kind).Inc()
}

// checkoutOutcome buckets a checkout error for the outcome label.
func checkoutOutcome(err error) string {
	var stockErr *InsufficientStockError
	if err == nil {
		return "success"
	}
	if errors.As(err, &stockErr) {
		return "insufficient_stock"
	}
	kind := Classify(err)
	switch {
	case errors.Is(kind, httpx.ErrValidation):
		return "invalid"
	case errors.Is(kind, httpx.ErrConflict), errors.Is(kind, httpx.ErrDuplicate):
		return "conflict"
	case errors.Is(kind, httpx.ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
