package workerpool

import (
	"context"

	"github.com/vnykmshr/slotflow/pkg/metrics"
)

// MetricsPool wraps a worker Pool with Prometheus gauges.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry
}

// NewWithMetrics creates a worker pool that reports size and activity to
// registry under name. A nil registry uses metrics.DefaultRegistry.
func NewWithMetrics(config Config, name string, registry *metrics.Registry) (*MetricsPool, error) {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}

	mp := &MetricsPool{name: name, registry: registry}

	// Chain the activity gauge onto any caller hooks.
	onStart, onComplete := config.OnTaskStart, config.OnTaskComplete
	config.OnTaskStart = func(workerID int, task Task) {
		if onStart != nil {
			onStart(workerID, task)
		}
		mp.updateMetrics()
	}
	config.OnTaskComplete = func(workerID int, result Result) {
		if onComplete != nil {
			onComplete(workerID, result)
		}
		mp.updateMetrics()
	}

	base, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}
	mp.pool = base
	mp.registry.WorkerPoolSize.WithLabelValues(name).Set(float64(base.Size()))
	mp.updateMetrics()
	return mp, nil
}

func (mp *MetricsPool) updateMetrics() {
	if mp.pool == nil {
		return
	}
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
}

func (mp *MetricsPool) Submit(task Task) error { return mp.pool.Submit(task) }

func (mp *MetricsPool) SubmitWithContext(ctx context.Context, task Task) error {
	return mp.pool.SubmitWithContext(ctx, task)
}

func (mp *MetricsPool) Shutdown() <-chan struct{} {
	done := mp.pool.Shutdown()
	mp.registry.WorkerPoolSize.WithLabelValues(mp.name).Set(0)
	return done
}

func (mp *MetricsPool) Size() int             { return mp.pool.Size() }
func (mp *MetricsPool) QueueSize() int        { return mp.pool.QueueSize() }
func (mp *MetricsPool) ActiveWorkers() int    { return mp.pool.ActiveWorkers() }
func (mp *MetricsPool) TotalCompleted() int64 { return mp.pool.TotalCompleted() }

var _ Pool = (*MetricsPool)(nil)
