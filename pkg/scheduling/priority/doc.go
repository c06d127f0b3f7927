// Package priority schedules a batch of tasks with bounded concurrency.
//
// Tasks are admitted in priority order (1 is the highest), with submission
// order breaking ties. At most Capacity tasks run at once and a running task
// is never preempted: when one finishes, its slot goes to the next queued
// task regardless of how that task's priority compares with the tasks still
// running.
//
// Schedule runs a batch for real and reports per-task results, the order in
// which tasks completed and the elapsed time. Simulate applies the same
// admission rules to a virtual clock and returns the resulting Plan, which
// is deterministic for a given batch and capacity.
//
//	batch := []priority.Task{
//		{Name: "Emergency", Priority: 1, Duration: time.Second},
//		{Name: "Background", Priority: 4, Duration: 5 * time.Second},
//	}
//	run, err := priority.Schedule(ctx, batch, 2, work)
package priority
