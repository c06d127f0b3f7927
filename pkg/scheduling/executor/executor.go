package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	sfcontext "github.com/vnykmshr/slotflow/pkg/common/context"
	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/common/validation"
	"github.com/vnykmshr/slotflow/pkg/metrics"
	"github.com/vnykmshr/slotflow/pkg/scheduling/admission"
	"github.com/vnykmshr/slotflow/pkg/scheduling/slots"
)

// Job is one unit of work submitted to an Executor.
type Job struct {
	// Label names the job in outcomes, logs and metrics.
	Label string

	// Priority orders admission; lower values are admitted first and equal
	// values keep submission order.
	Priority int

	// Fn performs the work.
	Fn func(ctx context.Context) (any, error)

	// OnDone runs inside the executor's critical section after Fn returns
	// and before the job's slot is released. It must not call back into the
	// executor.
	OnDone func(Outcome)
}

// Outcome describes what happened to a job.
type Outcome struct {
	Label    string
	Value    any
	Err      error
	Admitted bool
	Slot     slots.Slot
	Queued   time.Time
	Started  time.Time
	Finished time.Time
}

// Wait returns how long the job sat in the queue before admission.
func (o Outcome) Wait() time.Duration {
	if !o.Admitted {
		return 0
	}
	return o.Started.Sub(o.Queued)
}

// Future resolves once its job has finished or was dropped from the queue.
type Future struct {
	done chan struct{}
	out  Outcome
}

// Done returns a channel that is closed when the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the job's outcome. It is only meaningful after Done is closed.
func (f *Future) Outcome() Outcome {
	<-f.done
	return f.out
}

// Wait blocks until the outcome is available or ctx is done.
func (f *Future) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.done:
		return f.out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Executor runs submitted jobs with at most Capacity of them in flight.
type Executor interface {
	// Submit queues job and returns its future. Canceling ctx before the job
	// is admitted drops it with ErrNotAdmitted.
	Submit(ctx context.Context, job Job) (*Future, error)

	// Capacity returns the maximum number of jobs in flight.
	Capacity() int

	// InFlight returns the number of admitted, unfinished jobs.
	InFlight() int

	// Queued returns the number of jobs waiting for a slot.
	Queued() int

	// Peak returns the highest number of jobs observed in flight at once.
	Peak() int

	// Shutdown stops accepting jobs, drops queued ones with ErrClosed and
	// returns a channel closed once in-flight jobs have finished.
	Shutdown() <-chan struct{}
}

// Config holds configuration options for creating an Executor.
type Config struct {
	// Capacity is the number of admission slots. Must be at least 1.
	Capacity int

	// Name labels metrics. Defaults to "executor".
	Name string

	// Mode selects the dispatch realization when Dispatcher is nil.
	Mode Mode

	// Dispatcher overrides Mode with a custom realization.
	Dispatcher Dispatcher

	// JobTimeout bounds each job's execution. Zero means no timeout.
	JobTimeout time.Duration

	// DetachRunning makes admitted jobs run with a context that ignores
	// cancellation of the submit context, so canceling a run only stops
	// admission.
	DetachRunning bool

	// OnAdmit is called inside the critical section when a job takes a slot.
	OnAdmit func(label string, slot slots.Slot)

	// Metrics receives executor and slot metrics when non-nil.
	Metrics *metrics.Registry

	// Now is the clock used for outcome timestamps. Defaults to time.Now.
	Now func() time.Time
}

// executor implements Executor. Queue, slot occupancy and in-flight
// accounting change only under mu.
type executor struct {
	cfg        Config
	dispatcher Dispatcher
	slots      slots.Limiter

	mu       sync.Mutex
	queue    *admission.Queue
	inFlight int
	closed   bool
	drained  chan struct{}

	shutdownOnce sync.Once
	done         chan struct{}
}

// pending is a queued job and its bookkeeping.
type pending struct {
	job    Job
	ctx    context.Context
	future *Future
	seq    uint64
	stop   func() bool
}

// New creates an Executor.
func New(cfg Config) (Executor, error) {
	if err := validation.ValidatePositive("executor", "capacity", cfg.Capacity); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("executor", "job_timeout", cfg.JobTimeout); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "executor"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var lim slots.Limiter
	if cfg.Metrics != nil {
		ml, err := slots.NewWithMetrics(cfg.Capacity, cfg.Name, cfg.Metrics)
		if err != nil {
			return nil, err
		}
		lim = ml
	} else {
		lim = slots.MustNew(cfg.Capacity)
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		d, err := newDispatcher(cfg.Mode, cfg.Capacity, cfg.Name, cfg.Metrics)
		if err != nil {
			return nil, err
		}
		dispatcher = d
	}

	return &executor{
		cfg:        cfg,
		dispatcher: dispatcher,
		slots:      lim,
		queue:      admission.New(),
		drained:    make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func (e *executor) Submit(ctx context.Context, job Job) (*Future, error) {
	if job.Fn == nil {
		return nil, sferrors.NewValidationError("executor", "fn", nil, "cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p := &pending{
		job:    job,
		ctx:    ctx,
		future: &Future{done: make(chan struct{}), out: Outcome{Label: job.Label}},
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, sferrors.NewOperationError("executor", "Submit", sferrors.ErrClosed).WithContext(job.Label)
	}

	p.future.out.Queued = e.cfg.Now()
	if ctx.Err() != nil {
		e.resolve(p, notAdmitted(ctx))
		return p.future, nil
	}

	p.seq = e.queue.Push(job.Priority, p)
	p.stop = context.AfterFunc(ctx, func() { e.drop(p.seq) })
	e.pump()
	return p.future, nil
}

func (e *executor) Capacity() int {
	return e.cfg.Capacity
}

func (e *executor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

func (e *executor) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

func (e *executor) Peak() int {
	return e.slots.Peak()
}

func (e *executor) Shutdown() <-chan struct{} {
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		for {
			entry, ok := e.queue.Pop()
			if !ok {
				break
			}
			p := entry.Value.(*pending)
			p.stop()
			e.resolve(p, sferrors.NewOperationError("executor", "Shutdown", sferrors.ErrClosed).WithContext(p.job.Label))
		}
		e.updateQueueMetrics()
		if e.inFlight == 0 {
			close(e.drained)
		}
		e.mu.Unlock()

		go func() {
			<-e.drained
			<-e.dispatcher.Stop()
			close(e.done)
		}()
	})
	return e.done
}

// pump admits queued jobs while slots are free. Must be called with e.mu held.
func (e *executor) pump() {
	defer e.updateQueueMetrics()

	for e.queue.Len() > 0 {
		slot, ok := e.slots.TryAcquire()
		if !ok {
			return
		}
		entry, _ := e.queue.Pop()
		p := entry.Value.(*pending)
		p.stop()

		// Cancellation may have raced with this admission.
		if p.ctx.Err() != nil {
			e.slots.Release(slot)
			e.resolve(p, notAdmitted(p.ctx))
			continue
		}

		p.future.out.Admitted = true
		p.future.out.Slot = slot
		p.future.out.Started = e.cfg.Now()
		e.inFlight++
		if e.cfg.OnAdmit != nil {
			e.cfg.OnAdmit(p.job.Label, slot)
		}
		if m := e.cfg.Metrics; m != nil {
			m.TasksAdmitted.WithLabelValues(e.cfg.Name).Inc()
			m.AdmissionWait.WithLabelValues(e.cfg.Name).Observe(p.future.out.Wait().Seconds())
		}

		if err := e.dispatcher.Dispatch(func() { e.run(p) }); err != nil {
			e.inFlight--
			e.slots.Release(slot)
			p.future.out.Admitted = false
			e.resolve(p, sferrors.NewOperationError("executor", "Dispatch", err).WithContext(p.job.Label))
		}
	}
}

// run executes an admitted job and performs the completion hand-off.
func (e *executor) run(p *pending) {
	ctx := p.ctx
	if e.cfg.DetachRunning {
		ctx = sfcontext.Detach(ctx)
	}
	ctx, cancel := sfcontext.WithOptionalTimeout(ctx, e.cfg.JobTimeout)
	value, err := call(ctx, p.job.Fn)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	p.future.out.Value = value
	p.future.out.Err = err
	p.future.out.Finished = e.cfg.Now()
	if p.job.OnDone != nil {
		p.job.OnDone(p.future.out)
	}

	// Release and next admission happen without leaving the critical section.
	e.slots.Release(p.future.out.Slot)
	e.inFlight--
	close(p.future.done)

	if e.closed {
		if e.inFlight == 0 {
			close(e.drained)
		}
		return
	}
	e.pump()
}

// drop removes a job whose submit context ended before admission.
func (e *executor) drop(seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.queue.Remove(seq)
	if !ok {
		return
	}
	p := entry.Value.(*pending)
	e.resolve(p, notAdmitted(p.ctx))
	e.updateQueueMetrics()
}

// resolve completes a future that never ran. Must be called with e.mu held.
func (e *executor) resolve(p *pending, err error) {
	p.future.out.Err = err
	p.future.out.Finished = e.cfg.Now()
	close(p.future.done)
}

func (e *executor) updateQueueMetrics() {
	if m := e.cfg.Metrics; m != nil {
		m.QueueDepth.WithLabelValues(e.cfg.Name).Set(float64(e.queue.Len()))
	}
}

func notAdmitted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", sferrors.ErrNotAdmitted, context.Cause(ctx))
}

// call runs fn, converting a panic into an error.
func call(ctx context.Context, fn func(context.Context) (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := strings.TrimSpace(string(debug.Stack()))
			err = fmt.Errorf("panic: %v\n%s", r, stack)
		}
	}()
	return fn(ctx)
}
