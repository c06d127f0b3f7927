package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/metrics"
	"github.com/vnykmshr/slotflow/pkg/scheduling/workerpool"
)

// Mode selects how admitted jobs are run.
type Mode int

const (
	// ModeGoroutine runs every admitted job on its own goroutine.
	ModeGoroutine Mode = iota

	// ModeWorkerPool runs admitted jobs on a fixed pool of Capacity workers.
	ModeWorkerPool
)

func (m Mode) String() string {
	switch m {
	case ModeGoroutine:
		return "goroutine"
	case ModeWorkerPool:
		return "workerpool"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "goroutine", "goroutines":
		return ModeGoroutine, nil
	case "workerpool", "pool":
		return ModeWorkerPool, nil
	default:
		return 0, sferrors.NewValidationError("executor", "mode", s, "unknown mode").
			WithHint("use goroutine or workerpool")
	}
}

// Dispatcher hands admitted jobs to whatever runs them. Dispatch is called
// with the executor's lock held and must not block.
type Dispatcher interface {
	Dispatch(run func()) error
	Stop() <-chan struct{}
}

// GoDispatcher starts a goroutine per job.
type GoDispatcher struct {
	wg sync.WaitGroup
}

// Dispatch runs fn on a new goroutine.
func (d *GoDispatcher) Dispatch(fn func()) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
	return nil
}

// Stop returns a channel closed when every dispatched job has returned.
func (d *GoDispatcher) Stop() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	return done
}

// PoolDispatcher runs jobs on a workerpool.Pool.
type PoolDispatcher struct {
	pool workerpool.Pool
}

// NewPoolDispatcher creates a dispatcher backed by a pool of workers. The
// pool queue holds as many entries as there are workers so that a job
// admitted while its predecessor's worker is still finishing never blocks.
func NewPoolDispatcher(workers int, name string, registry *metrics.Registry) (*PoolDispatcher, error) {
	cfg := workerpool.Config{
		WorkerCount: workers,
		QueueSize:   workers,
	}
	if registry != nil {
		pool, err := workerpool.NewWithMetrics(cfg, name, registry)
		if err != nil {
			return nil, err
		}
		return &PoolDispatcher{pool: pool}, nil
	}
	pool, err := workerpool.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &PoolDispatcher{pool: pool}, nil
}

// Dispatch queues fn on the pool.
func (d *PoolDispatcher) Dispatch(fn func()) error {
	return d.pool.Submit(workerpool.TaskFunc(func(context.Context) error {
		fn()
		return nil
	}))
}

// Stop shuts the pool down.
func (d *PoolDispatcher) Stop() <-chan struct{} {
	return d.pool.Shutdown()
}

func newDispatcher(mode Mode, capacity int, name string, registry *metrics.Registry) (Dispatcher, error) {
	switch mode {
	case ModeGoroutine:
		return &GoDispatcher{}, nil
	case ModeWorkerPool:
		return NewPoolDispatcher(capacity, name, registry)
	default:
		return nil, sferrors.NewValidationError("executor", "mode", mode, "unknown mode")
	}
}
