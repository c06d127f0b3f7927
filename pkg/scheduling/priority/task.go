package priority

import (
	"context"
	"time"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/common/validation"
)

// Errors returned by Schedule and Simulate, and wrapped in task results.
var (
	ErrInvalidBatch         = sferrors.ErrInvalidBatch
	ErrInvalidConfiguration = sferrors.ErrInvalidConfiguration
	ErrTaskFailed           = sferrors.ErrTaskFailed
	ErrNotAdmitted          = sferrors.ErrNotAdmitted
)

// Task is one unit of a batch. Priority 1 is the highest; Duration is only
// interpreted by the work function.
type Task struct {
	Name     string
	Priority int
	Duration time.Duration
}

// WorkFunc performs a task. It is called at most once per task, from the
// goroutine that holds the task's slot.
type WorkFunc func(ctx context.Context, task Task) (any, error)

// TaskResult is the outcome of one task in a run. Offsets are relative to
// the start of the run.
type TaskResult struct {
	Task  Task
	Value any
	Err   error

	// Admitted reports whether the task was given a slot. Tasks dropped by
	// cancellation are never admitted.
	Admitted bool
	Slot     int

	// AdmissionIndex is the 1-based position in admission order, or 0.
	AdmissionIndex int

	Started  time.Duration
	Finished time.Duration
	Wait     time.Duration
}

// OK reports whether the task ran and its work succeeded.
func (r TaskResult) OK() bool {
	return r.Admitted && r.Err == nil
}

// Runtime returns how long the task held its slot.
func (r TaskResult) Runtime() time.Duration {
	if !r.Admitted {
		return 0
	}
	return r.Finished - r.Started
}

// CompletionRecord notes that a task finished. Order is 1-based.
type CompletionRecord struct {
	Name  string
	Order int
	At    time.Duration
}

// RunResult is everything observed during one Schedule call.
type RunResult struct {
	RunID    string
	Capacity int
	Started  time.Time
	Elapsed  time.Duration

	// Results are in the batch's submission order.
	Results []TaskResult

	// Completions are in the order tasks finished.
	Completions []CompletionRecord

	// AdmissionOrder lists task names in the order they took a slot.
	AdmissionOrder []string

	// Peak is the highest number of tasks observed running at once.
	Peak int
}

// CompletionOrder returns the names of completed tasks in completion order.
func (r *RunResult) CompletionOrder() []string {
	names := make([]string, len(r.Completions))
	for i, c := range r.Completions {
		names[i] = c.Name
	}
	return names
}

// Result looks up a task's result by name.
func (r *RunResult) Result(name string) (TaskResult, bool) {
	for _, res := range r.Results {
		if res.Task.Name == name {
			return res, true
		}
	}
	return TaskResult{}, false
}

// Failed returns the results whose work failed or which were never admitted.
func (r *RunResult) Failed() []TaskResult {
	var failed []TaskResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Succeeded reports whether every task ran and succeeded.
func (r *RunResult) Succeeded() bool {
	return len(r.Failed()) == 0
}

// Values returns the work values in submission order. Failed tasks
// contribute nil.
func (r *RunResult) Values() []any {
	values := make([]any, len(r.Results))
	for i, res := range r.Results {
		values[i] = res.Value
	}
	return values
}

// ValidateBatch checks that a batch can be scheduled: names are non-empty
// and unique, and durations are not negative. Errors match ErrInvalidBatch.
func ValidateBatch(batch []Task) error {
	names := make([]string, len(batch))
	for i, t := range batch {
		if t.Name == "" {
			return sferrors.NewBatchError("scheduler", "name", i, "task name cannot be empty").
				WithHint("give every task a unique name")
		}
		if t.Duration < 0 {
			return sferrors.NewBatchError("scheduler", "duration", t.Duration, "cannot be negative").
				WithHint("task " + t.Name + " needs a zero or positive duration")
		}
		names[i] = t.Name
	}
	return validation.ValidateUnique("scheduler", "task name", names)
}
