// Package executor runs jobs with a fixed number of admission slots.
//
// Jobs wait in a priority queue ordered by (priority, submission order).
// Whenever a slot is free the head of the queue is admitted. When a job
// finishes, its completion callback, the release of its slot and the
// admission of the next queued job happen inside one critical section, so
// no other job can observe the freed slot in between.
//
// Admitted jobs are never preempted. Canceling the context passed to Submit
// only affects a job that is still queued: it is dropped with
// errors.ErrNotAdmitted.
//
//	exec, _ := executor.New(executor.Config{Capacity: 2})
//	defer func() { <-exec.Shutdown() }()
//
//	f, _ := exec.Submit(ctx, executor.Job{Label: "a", Priority: 1, Fn: work})
//	out := f.Outcome()
package executor
