package metrics

import "github.com/prometheus/client_golang/prometheus"

// Order creation outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
)

// OrderMetrics counts lifecycle activity of the order engine.
type OrderMetrics struct {
	created        *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	commitFailures prometheus.Counter
}

// NewOrderMetrics registers the order counters on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Order creation attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Applied order status transitions.",
	}, []string{"from", "to"})
	commitFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_commit_failures_total",
		Help:      "Paid orders that could not commit stock and now require a refund.",
	})
	reg.MustRegister(created, transitions, commitFailures)
	return &OrderMetrics{
		created:        created,
		transitions:    transitions,
		commitFailures: commitFailures,
	}
}

// IncCreated records one order creation attempt.
func (m *OrderMetrics) IncCreated(outcome string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition records an applied status change.
func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncCommitFailure records a stock commit that fell back to REQUIRES_REFUND.
func (m *OrderMetrics) IncCommitFailure() {
	if m == nil || m.commitFailures == nil {
		return
	}
	m.commitFailures.Inc()
}
