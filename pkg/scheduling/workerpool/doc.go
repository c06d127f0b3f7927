/*
Package workerpool runs tasks on a fixed number of worker goroutines.

In slotflow a pool sized to the scheduler's capacity is one realization of the
bounded executor: one worker per admission slot. The executor only hands a job
to the pool after it has claimed a slot, so the queue never holds more than
capacity jobs and Submit never blocks for long.

Basic usage:

	pool := workerpool.New(2, 2) // 2 workers, queue capacity 2
	defer func() { <-pool.Shutdown() }()

	err := pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
		return nil
	}))

Panics inside a task are recovered and reported as the task's error through
OnTaskComplete; an optional PanicHandler sees the recovered value.
Shutdown lets queued tasks finish before the workers exit.
*/
package workerpool
