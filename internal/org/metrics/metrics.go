package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the org module: creation counts,
// hierarchy mutations, and traversal latency.
type Metrics struct {
	OrganizationsCreated prometheus.Counter
	ParentChanges        prometheus.Counter
	RelationshipsCreated prometheus.Counter
	CycleRejections      prometheus.Counter
	SetParentDuration    prometheus.Histogram
	TraversalDuration    prometheus.Histogram
}

// New creates a Metrics instance with all org module metrics registered on
// the default registry.
func New() *Metrics {
	return &Metrics{
		OrganizationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orgcore_organizations_created_total",
			Help: "Total number of organizations created",
		}),
		ParentChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orgcore_organization_parent_changes_total",
			Help: "Total number of successful parent reassignments",
		}),
		RelationshipsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orgcore_intercompany_relationships_created_total",
			Help: "Total number of intercompany relationships created",
		}),
		CycleRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orgcore_hierarchy_cycle_rejections_total",
			Help: "Total number of parent changes rejected for creating a cycle",
		}),
		SetParentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orgcore_set_parent_duration_seconds",
			Help:    "Duration of SetParent operations including the cycle walk",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		TraversalDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orgcore_hierarchy_traversal_duration_seconds",
			Help:    "Duration of ancestor/descendant traversals",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveSetParent records the duration of a SetParent operation.
func (m *Metrics) ObserveSetParent(start time.Time) {
	m.SetParentDuration.Observe(time.Since(start).Seconds())
}

// ObserveTraversal records the duration of a hierarchy traversal.
func (m *Metrics) ObserveTraversal(start time.Time) {
	m.TraversalDuration.Observe(time.Since(start).Seconds())
}
