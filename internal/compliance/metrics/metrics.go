package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance module.
type Metrics struct {
	ItemsCreated        prometheus.Counter
	Transitions         *prometheus.CounterVec
	OverdueMaterialized prometheus.Counter
}

// New creates a Metrics instance with all compliance module metrics
// registered on the default registry.
func New() *Metrics {
	return &Metrics{
		ItemsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orgcore_compliance_items_created_total",
			Help: "Total number of compliance items created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orgcore_compliance_transitions_total",
			Help: "Total number of successful compliance status transitions",
		}, []string{"to"}),
		OverdueMaterialized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orgcore_compliance_overdue_materialized_total",
			Help: "Total number of items stamped overdue by the sweep",
		}),
	}
}

// IncrementTransition records one successful transition into the target
// status.
func (m *Metrics) IncrementTransition(to string) {
	m.Transitions.WithLabelValues(to).Inc()
}
