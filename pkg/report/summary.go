package report

import (
	"errors"
	"slices"
	"time"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
	"github.com/vnykmshr/slotflow/pkg/workload"
)

// PriorityGroup lists the tasks sharing one priority, in submission order.
type PriorityGroup struct {
	Priority int      `json:"priority"`
	Tasks    []string `json:"tasks"`
}

// Failure describes a task that did not succeed.
type Failure struct {
	Task     string `json:"task"`
	Error    string `json:"error"`
	Admitted bool   `json:"admitted"`
}

// TaskLine is the per-task part of a summary, in admission order.
type TaskLine struct {
	Name     string        `json:"name"`
	Priority int           `json:"priority"`
	Slot     int           `json:"slot"`
	Started  time.Duration `json:"started"`
	Finished time.Duration `json:"finished"`
	Wait     time.Duration `json:"wait"`
	OK       bool          `json:"ok"`
}

// Summary condenses a run into the figures worth reporting. Durations are
// wall-clock time.
type Summary struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Capacity int       `json:"capacity"`
	Tasks    int       `json:"tasks"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
	Peak      int `json:"peak"`

	Elapsed time.Duration `json:"elapsed"`

	// Sequential is the sum of task durations: the time one slot would need.
	Sequential time.Duration `json:"sequential"`

	// Longest is the longest single task duration.
	Longest time.Duration `json:"longest"`

	// LowerBound is the shortest time capacity slots could possibly take:
	// the larger of Longest and Sequential spread evenly over the slots.
	LowerBound time.Duration `json:"lower_bound"`

	// Planned is the makespan of the virtual-time plan, when one was given.
	Planned time.Duration `json:"planned,omitempty"`

	// Speedup is Sequential divided by Elapsed.
	Speedup float64 `json:"speedup"`

	// Efficiency is LowerBound divided by Elapsed; 1 means no time was lost.
	Efficiency float64 `json:"efficiency"`

	AdmissionOrder  []string        `json:"admission_order"`
	CompletionOrder []string        `json:"completion_order"`
	Groups          []PriorityGroup `json:"groups"`
	Lines           []TaskLine      `json:"lines"`
	Failures        []Failure       `json:"failures,omitempty"`
}

// Summarize builds a Summary of run. Task durations are scaled by unit as
// workload.Sleep scales them; a zero unit means one second. plan may be nil.
func Summarize(run *priority.RunResult, plan *priority.Plan, unit time.Duration) Summary {
	if unit <= 0 {
		unit = time.Second
	}

	s := Summary{
		RunID:           run.RunID,
		Started:         run.Started,
		Capacity:        run.Capacity,
		Tasks:           len(run.Results),
		Peak:            run.Peak,
		Elapsed:         run.Elapsed,
		AdmissionOrder:  slices.Clone(run.AdmissionOrder),
		CompletionOrder: run.CompletionOrder(),
	}
	if plan != nil {
		s.Planned = workload.Scale(plan.Makespan, unit)
	}

	groups := make(map[int][]string)
	for _, res := range run.Results {
		d := workload.Scale(res.Task.Duration, unit)
		s.Sequential += d
		s.Longest = max(s.Longest, d)
		groups[res.Task.Priority] = append(groups[res.Task.Priority], res.Task.Name)

		switch {
		case res.OK():
			s.Succeeded++
		case !res.Admitted:
			s.Dropped++
			s.Failures = append(s.Failures, Failure{Task: res.Task.Name, Error: errorText(res.Err)})
		default:
			s.Failed++
			s.Failures = append(s.Failures, Failure{Task: res.Task.Name, Error: errorText(res.Err), Admitted: true})
		}
	}

	for _, name := range run.AdmissionOrder {
		res, _ := run.Result(name)
		s.Lines = append(s.Lines, TaskLine{
			Name:     name,
			Priority: res.Task.Priority,
			Slot:     res.Slot,
			Started:  res.Started,
			Finished: res.Finished,
			Wait:     res.Wait,
			OK:       res.OK(),
		})
	}

	priorities := make([]int, 0, len(groups))
	for p := range groups {
		priorities = append(priorities, p)
	}
	slices.Sort(priorities)
	for _, p := range priorities {
		s.Groups = append(s.Groups, PriorityGroup{Priority: p, Tasks: groups[p]})
	}

	if run.Capacity > 0 {
		s.LowerBound = max(s.Longest, s.Sequential/time.Duration(run.Capacity))
	}
	if s.Elapsed > 0 {
		s.Speedup = float64(s.Sequential) / float64(s.Elapsed)
		s.Efficiency = float64(s.LowerBound) / float64(s.Elapsed)
	}
	return s
}

// errorText drops the task-failure prefix so that reports show the cause.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var te *sferrors.TaskError
	if errors.As(err, &te) && te.Cause != nil {
		return te.Cause.Error()
	}
	return err.Error()
}
