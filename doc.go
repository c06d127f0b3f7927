/*
Package slotflow runs batches of prioritized tasks on a fixed number of
execution slots.

Tasks are admitted highest priority first (priority 1 is the highest),
with submission order breaking ties. At most K tasks run at once and a
running task is never preempted. Per-task failures are recorded in the
result without stopping the run.

Scheduling (pkg/scheduling):
  - priority: Batch scheduler, results and virtual-time planning
  - executor: Bounded-capacity job executor with priority admission
  - admission: Stable priority queue of waiting jobs
  - slots: Numbered slot limiter
  - workerpool: Fixed worker pool used as an executor dispatcher
  - recurring: Cron-driven re-runs of a batch

Supporting packages:
  - workload: Simulated work and YAML batch files
  - report: Summaries, terminal rendering, Redis publishing
  - telemetry: slog and OpenTelemetry setup
  - metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
		"github.com/vnykmshr/slotflow/pkg/workload"
	)

	batch := workload.ReferenceBatch()
	run, err := priority.Schedule(ctx, batch, 2, workload.Sleep(10*time.Millisecond))
	if err != nil {
		return err
	}
	fmt.Println(run.CompletionOrder())
*/
package slotflow
