package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	sfcontext "github.com/vnykmshr/slotflow/pkg/common/context"
	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
)

// Submit adds a task to the pool for execution.
// The task will be executed with context.Background().
func (p *workerPool) Submit(task Task) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext adds a task to the pool for execution with the given context.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return sferrors.NewValidationError("workerpool", "task", nil, "cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Check if context is already canceled before attempting to queue
	if sfcontext.IsCanceled(ctx) {
		return sferrors.NewOperationError("workerpool", "Submit", ctx.Err())
	}

	// Holding the read lock while sending keeps Shutdown from closing the
	// queue underneath us.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.isShutdown {
		return sferrors.NewOperationError("workerpool", "Submit", sferrors.ErrClosed)
	}

	select {
	case p.taskQueue <- taskWithContext{task: task, ctx: ctx}:
		return nil
	case <-ctx.Done():
		return sferrors.NewOperationError("workerpool", "Submit", ctx.Err())
	}
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.isShutdown = true
		close(p.taskQueue)
		p.mu.Unlock()

		go func() {
			p.workerWg.Wait()
			close(p.done)
		}()
	})
	return p.done
}

// Size returns the number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return len(p.taskQueue)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *workerPool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// TotalCompleted returns the total number of tasks completed by the pool.
func (p *workerPool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// run is the main loop for a worker. It drains the queue until it is closed.
func (w *worker) run() {
	defer w.pool.workerWg.Done()

	for twc := range w.pool.taskQueue {
		w.executeTask(twc)
	}
}

// executeTask executes a single task with the provided context.
func (w *worker) executeTask(twc taskWithContext) {
	p := w.pool
	start := time.Now()
	var err error

	p.activeWorkers.Add(1)

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(w.id, twc.task)
	}

	// Handle panics during task execution
	defer func() {
		if r := recover(); r != nil {
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(twc.task, r)
			}
			err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}

		p.activeWorkers.Add(-1)
		p.totalCompleted.Add(1)

		if p.config.OnTaskComplete != nil {
			p.config.OnTaskComplete(w.id, Result{
				Task:     twc.task,
				Error:    err,
				Duration: time.Since(start),
				WorkerID: w.id,
			})
		}
	}()

	ctx, cancel := sfcontext.WithOptionalTimeout(twc.ctx, p.config.TaskTimeout)
	defer cancel()

	err = twc.task.Execute(ctx)
}
