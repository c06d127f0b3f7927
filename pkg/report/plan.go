package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
	"github.com/vnykmshr/slotflow/pkg/workload"
)

// RenderPlan writes the virtual-time plan as a per-slot timeline, with
// durations scaled by unit.
func RenderPlan(w io.Writer, plan *priority.Plan, unit time.Duration) error {
	if unit <= 0 {
		unit = time.Second
	}
	st := newStyles(lipgloss.NewRenderer(w))

	bySlot := make([][]priority.PlannedTask, plan.Capacity)
	for _, name := range plan.AdmissionOrder {
		pt, _ := plan.Task(name)
		bySlot[pt.Slot] = append(bySlot[pt.Slot], pt)
	}

	var b strings.Builder
	b.WriteString(st.title.Render(fmt.Sprintf("Plan for %d tasks on %d slots", len(plan.Tasks), plan.Capacity)))
	b.WriteString("\n")
	for slot, tasks := range bySlot {
		fmt.Fprintf(&b, "\n%s", st.label.Render(fmt.Sprintf("slot %d", slot)))
		for i, pt := range tasks {
			if i > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(&b, "%s [%s-%s]", pt.Task.Name,
				round(workload.Scale(pt.Start, unit)), round(workload.Scale(pt.End, unit)))
		}
	}
	b.WriteString("\n")
	b.WriteString(renderOrder(st, "Admission order", plan.AdmissionOrder))
	b.WriteString(renderOrder(st, "Completion order", plan.CompletionOrder))
	fmt.Fprintf(&b, "\n\n%s%s", st.label.Render("Makespan"), round(workload.Scale(plan.Makespan, unit)))
	fmt.Fprintf(&b, "\n%s%s", st.label.Render("Sequential"), round(workload.Scale(plan.Sequential, unit)))

	_, err := fmt.Fprintln(w, st.box.Render(b.String()))
	return err
}
