package workload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
)

// ErrInjected is returned by work wrapped with FailFor.
var ErrInjected = errors.New("injected failure")

// Scale converts a task duration expressed in seconds into wall-clock time
// where one second lasts unit.
func Scale(d, unit time.Duration) time.Duration {
	if unit == time.Second {
		return d
	}
	return time.Duration(float64(d) * float64(unit) / float64(time.Second))
}

// Sleep returns work that waits for the task's scaled duration and returns
// "Result <name>". A canceled context ends the wait early with ctx.Err().
func Sleep(unit time.Duration) priority.WorkFunc {
	return func(ctx context.Context, t priority.Task) (any, error) {
		timer := time.NewTimer(Scale(t.Duration, unit))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return Result(t.Name), nil
		}
	}
}

// Result is the value Sleep produces for a task.
func Result(name string) string {
	return fmt.Sprintf("Result %s", name)
}

// FailFor wraps work so that the named tasks fail with ErrInjected after
// their work has run.
func FailFor(work priority.WorkFunc, names ...string) priority.WorkFunc {
	return func(ctx context.Context, t priority.Task) (any, error) {
		v, err := work(ctx, t)
		if slices.Contains(names, t.Name) {
			return nil, fmt.Errorf("%s: %w", t.Name, ErrInjected)
		}
		return v, err
	}
}

// Probe counts calls to the work it wraps and records the highest number
// of calls active at once.
type Probe struct {
	calls  atomic.Int64
	active atomic.Int64
	peak   atomic.Int64
}

// Wrap returns work instrumented by p.
func (p *Probe) Wrap(work priority.WorkFunc) priority.WorkFunc {
	return func(ctx context.Context, t priority.Task) (any, error) {
		p.calls.Add(1)
		n := p.active.Add(1)
		defer p.active.Add(-1)

		for {
			peak := p.peak.Load()
			if n <= peak || p.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		return work(ctx, t)
	}
}

// Calls returns the number of calls made so far.
func (p *Probe) Calls() int { return int(p.calls.Load()) }

// Active returns the number of calls in progress.
func (p *Probe) Active() int { return int(p.active.Load()) }

// Peak returns the highest number of concurrent calls observed.
func (p *Probe) Peak() int { return int(p.peak.Load()) }
