package priority

import (
	"cmp"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/vnykmshr/slotflow/pkg/common/validation"
	"github.com/vnykmshr/slotflow/pkg/scheduling/admission"
	"github.com/vnykmshr/slotflow/pkg/scheduling/slots"
)

// PlannedTask is a task's place in a Plan.
type PlannedTask struct {
	Task            Task
	Slot            int
	AdmissionIndex  int
	CompletionIndex int
	Start           time.Duration
	End             time.Duration
}

// Plan is the schedule a batch follows when every task takes exactly its
// Duration.
type Plan struct {
	Capacity int

	// Tasks are in the batch's submission order.
	Tasks []PlannedTask

	AdmissionOrder  []string
	CompletionOrder []string

	// Makespan is the time from the first admission to the last completion.
	Makespan time.Duration

	// Sequential is the sum of all durations.
	Sequential time.Duration
}

// Task looks up a planned task by name.
func (p *Plan) Task(name string) (PlannedTask, bool) {
	for _, t := range p.Tasks {
		if t.Task.Name == name {
			return t, true
		}
	}
	return PlannedTask{}, false
}

// completion is a pending end-of-task event.
type completion struct {
	end   time.Duration
	seq   int
	index int
	slot  slots.Slot
}

// byEndThenAdmission orders completions by end time, then admission order.
func byEndThenAdmission(a, b any) int {
	ca, cb := a.(completion), b.(completion)
	if c := cmp.Compare(ca.end, cb.end); c != 0 {
		return c
	}
	return cmp.Compare(ca.seq, cb.seq)
}

// Simulate computes the schedule of batch on capacity slots in virtual
// time. It applies the same rules as Schedule: admission by priority then
// submission order, no preemption, and each freed slot is offered to the
// head of the queue before the next completion is processed. Completions at
// the same instant are processed in admission order.
func Simulate(batch []Task, capacity int) (*Plan, error) {
	if err := validation.ValidatePositive("scheduler", "capacity", capacity); err != nil {
		return nil, err
	}
	if err := ValidateBatch(batch); err != nil {
		return nil, err
	}

	plan := &Plan{
		Capacity: capacity,
		Tasks:    make([]PlannedTask, len(batch)),
	}
	queue := admission.New()
	for i, t := range batch {
		plan.Tasks[i].Task = t
		plan.Sequential += t.Duration
		queue.Push(t.Priority, i)
	}

	free := slots.MustNew(capacity)
	running := binaryheap.NewWith(byEndThenAdmission)
	var now time.Duration

	admit := func() {
		for queue.Len() > 0 {
			slot, ok := free.TryAcquire()
			if !ok {
				return
			}
			entry, _ := queue.Pop()
			i := entry.Value.(int)
			plan.AdmissionOrder = append(plan.AdmissionOrder, batch[i].Name)

			pt := &plan.Tasks[i]
			pt.Slot = int(slot)
			pt.AdmissionIndex = len(plan.AdmissionOrder)
			pt.Start = now
			pt.End = now + batch[i].Duration
			running.Push(completion{end: pt.End, seq: pt.AdmissionIndex, index: i, slot: slot})
		}
	}

	admit()
	for !running.Empty() {
		v, _ := running.Pop()
		c := v.(completion)
		now = c.end
		plan.CompletionOrder = append(plan.CompletionOrder, batch[c.index].Name)
		plan.Tasks[c.index].CompletionIndex = len(plan.CompletionOrder)
		free.Release(c.slot)
		admit()
	}
	plan.Makespan = now
	return plan, nil
}
