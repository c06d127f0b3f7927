package priority

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// referenceBatch is the five-task batch used throughout the tests.
func referenceBatch(unit time.Duration) []Task {
	return []Task{
		{Name: "Emergency", Priority: 1, Duration: 1 * unit},
		{Name: "Important", Priority: 2, Duration: 2 * unit},
		{Name: "RoutineA", Priority: 3, Duration: 3 * unit},
		{Name: "RoutineB", Priority: 3, Duration: 2 * unit},
		{Name: "Background", Priority: 4, Duration: 5 * unit},
	}
}

// inverseBatch gives higher priority to longer tasks, so completion order
// differs from admission order whenever tasks overlap.
func inverseBatch(unit time.Duration) []Task {
	return []Task{
		{Name: "long", Priority: 1, Duration: 60 * unit},
		{Name: "short", Priority: 3, Duration: 10 * unit},
		{Name: "mid", Priority: 2, Duration: 35 * unit},
	}
}

func sleepWork(ctx context.Context, t Task) (any, error) {
	timer := time.NewTimer(t.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return fmt.Sprintf("Result %s", t.Name), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// probe wraps work and records how many calls were active at once.
type probe struct {
	work   WorkFunc
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
}

func (p *probe) run(ctx context.Context, t Task) (any, error) {
	p.calls.Add(1)
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	return p.work(ctx, t)
}

// recorder keeps the order in which work calls start.
type recorder struct {
	mu      sync.Mutex
	started []string
}

func (r *recorder) wrap(work WorkFunc) WorkFunc {
	return func(ctx context.Context, t Task) (any, error) {
		r.mu.Lock()
		r.started = append(r.started, t.Name)
		r.mu.Unlock()
		return work(ctx, t)
	}
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}
