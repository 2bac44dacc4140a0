package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

// Metrics holds the counters the checkout core reports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ordersPlaced       *prometheus.CounterVec
	paymentTransitions *prometheus.CounterVec
	providerCallbacks  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transitions_total",
			Help:      "Payment status transitions.",
		}, []string{"from", "to"}),
		providerCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_callbacks_total",
			Help:      "Payment provider callbacks by outcome.",
		}, []string{"provider", "outcome"}),
	}
	reg.MustRegister(m.ordersPlaced, m.paymentTransitions, m.providerCallbacks)
	return m
}

func (m *Metrics) OrderPlaced(outcome string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PaymentTransition(from, to string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ProviderCallback(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerCallbacks.WithLabelValues(provider, outcome).Inc()
}
