package slots

import (
	"context"

	"github.com/vnykmshr/slotflow/pkg/metrics"
)

// MetricsLimiter wraps a Limiter with Prometheus gauges for capacity,
// occupancy and blocked callers.
type MetricsLimiter struct {
	limiter  Limiter
	name     string
	registry *metrics.Registry
}

// NewWithMetrics creates a limiter that reports to registry under name.
// A nil registry uses metrics.DefaultRegistry.
func NewWithMetrics(capacity int, name string, registry *metrics.Registry) (*MetricsLimiter, error) {
	base, err := New(capacity)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	ml := &MetricsLimiter{
		limiter:  base,
		name:     name,
		registry: registry,
	}
	ml.registry.SlotsCapacity.WithLabelValues(name).Set(float64(capacity))
	ml.updateMetrics()
	return ml, nil
}

// updateMetrics updates the current state metrics.
func (ml *MetricsLimiter) updateMetrics() {
	ml.registry.SlotsInUse.WithLabelValues(ml.name).Set(float64(ml.limiter.InUse()))
	ml.registry.SlotsWaiting.WithLabelValues(ml.name).Set(float64(ml.limiter.Waiting()))
}

// TryAcquire takes a free slot without blocking.
func (ml *MetricsLimiter) TryAcquire() (Slot, bool) {
	s, ok := ml.limiter.TryAcquire()
	if ok {
		ml.updateMetrics()
	}
	return s, ok
}

// Acquire blocks until a slot is free or ctx is done.
func (ml *MetricsLimiter) Acquire(ctx context.Context) (Slot, error) {
	ml.registry.SlotsWaiting.WithLabelValues(ml.name).Inc()
	s, err := ml.limiter.Acquire(ctx)
	ml.updateMetrics()
	return s, err
}

// Release returns a held slot.
func (ml *MetricsLimiter) Release(s Slot) {
	ml.limiter.Release(s)
	ml.updateMetrics()
}

func (ml *MetricsLimiter) Capacity() int  { return ml.limiter.Capacity() }
func (ml *MetricsLimiter) InUse() int     { return ml.limiter.InUse() }
func (ml *MetricsLimiter) Available() int { return ml.limiter.Available() }
func (ml *MetricsLimiter) Peak() int      { return ml.limiter.Peak() }
func (ml *MetricsLimiter) Waiting() int   { return ml.limiter.Waiting() }

var _ Limiter = (*MetricsLimiter)(nil)
