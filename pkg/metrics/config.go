package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every slotflow metric name.
const DefaultNamespace = "slotflow"

// Config holds configuration for metrics collection.
type Config struct {
	// Registry is the Prometheus registerer to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "slotflow" namespace for metrics.
	Namespace string

	// Labels are constant labels added to all metrics.
	Labels prometheus.Labels
}
