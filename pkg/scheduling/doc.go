/*
Package scheduling groups the components that decide when tasks run.

The layers build on each other:

  - admission: waiting jobs ordered by (priority, submission sequence)
  - slots: the K numbered slots a job must hold while it runs
  - workerpool: fixed goroutine pool that admitted jobs can be handed to
  - executor: ties the three together; a job is admitted only when a slot
    is free, and a finishing job frees its slot before the next admission
  - priority: runs a whole batch through a fresh executor and collects a
    RunResult, or simulates the same batch in virtual time
  - recurring: fires a function on a cron schedule

Most callers only need the priority package:

	sched, err := priority.New(priority.Config{Capacity: 2})
	if err != nil {
		return err
	}
	run, err := sched.Schedule(ctx, batch, work)

All components are safe for concurrent use and honor context cancellation.
*/
package scheduling
