package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// styles are bound to the renderer of the output they are written to, so
// colors are only emitted for terminals.
type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
	box    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		header: r.NewStyle().Bold(true).Underline(true),
		label:  r.NewStyle().Foreground(lipgloss.Color("8")).Width(22),
		ok:     r.NewStyle().Foreground(lipgloss.Color("10")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("9")),
		box:    r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// Render writes a human-readable report of s to w.
func Render(w io.Writer, s Summary) error {
	st := newStyles(lipgloss.NewRenderer(w))

	sections := []string{
		st.title.Render(fmt.Sprintf("Run %s", s.RunID)),
		renderFigures(st, s),
		renderTasks(st, s),
		renderOrder(st, "Completion order", s.CompletionOrder),
		renderGroups(st, s),
	}
	if len(s.Failures) > 0 {
		sections = append(sections, renderFailures(st, s))
	}

	out := st.box.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
	_, err := fmt.Fprintln(w, out)
	return err
}

func renderFigures(st styles, s Summary) string {
	rows := [][2]string{
		{"Tasks", fmt.Sprintf("%d (%d ok, %d failed, %d not admitted)", s.Tasks, s.Succeeded, s.Failed, s.Dropped)},
		{"Capacity", fmt.Sprintf("%d (peak %d)", s.Capacity, s.Peak)},
		{"Elapsed", round(s.Elapsed).String()},
		{"Sequential", round(s.Sequential).String()},
		{"Lower bound", round(s.LowerBound).String()},
	}
	if s.Planned > 0 {
		rows = append(rows, [2]string{"Planned", round(s.Planned).String()})
	}
	rows = append(rows,
		[2]string{"Speedup", fmt.Sprintf("%.2fx", s.Speedup)},
		[2]string{"Efficiency", fmt.Sprintf("%.0f%%", s.Efficiency*100)},
	)

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(st.label.Render(row[0]))
		b.WriteString(row[1])
	}
	return "\n" + b.String()
}

func renderTasks(st styles, s Summary) string {
	var b strings.Builder
	b.WriteString("\n" + st.header.Render("Admission order"))
	for i, line := range s.Lines {
		status := st.ok.Render("ok")
		if !line.OK {
			status = st.fail.Render("failed")
		}
		fmt.Fprintf(&b, "\n%2d. %-16s p%-2d slot %d  %8s -> %-8s %s",
			i+1, line.Name, line.Priority, line.Slot,
			round(line.Started), round(line.Finished), status)
	}
	return b.String()
}

func renderOrder(st styles, title string, names []string) string {
	var b strings.Builder
	b.WriteString("\n" + st.header.Render(title))
	for i, name := range names {
		fmt.Fprintf(&b, "\n%2d. %s", i+1, name)
	}
	return b.String()
}

func renderGroups(st styles, s Summary) string {
	var b strings.Builder
	b.WriteString("\n" + st.header.Render("By priority"))
	for _, g := range s.Groups {
		fmt.Fprintf(&b, "\n%d: %s", g.Priority, strings.Join(g.Tasks, ", "))
	}
	return b.String()
}

func renderFailures(st styles, s Summary) string {
	var b strings.Builder
	b.WriteString("\n" + st.header.Render("Failures"))
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "\n%s %s", st.fail.Render(f.Task+":"), f.Error)
	}
	return b.String()
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
