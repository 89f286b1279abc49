package gaps

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/abhisek/qbankgen/internal/ui/components"
	"github.com/abhisek/qbankgen/internal/ui/theme"
)

const barWidth = 24

// WriteJSON writes v (a *Report or *Summary) as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Render formats a detailed report as a styled text table.
func (rep *Report) Render() string {
	var b strings.Builder
	fmt.Fprintln(&b, theme.Title.Render(fmt.Sprintf("%s / %s", rep.TestType, rep.Section)))
	fmt.Fprintln(&b, theme.Dim.Render("difficulty strategy: "+rep.Strategy))
	if rep.Inconsistency != nil {
		fmt.Fprintln(&b, theme.Warn.Render("warning: "+rep.Inconsistency.Error()))
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, theme.Header.Render(fmt.Sprintf("%-12s  %-28s  %-4s  %6s  %8s  %7s  %7s",
		"Mode", "Sub-skill", "Diff", "Target", "Existing", "Deficit", "Done")))
	fmt.Fprintln(&b, theme.Dim.Render(strings.Repeat("─", 86)))
	for _, r := range rep.Rows {
		line := fmt.Sprintf("%-12s  %-28s  %-4d  %6d  %8d  %7d  ",
			r.Mode, truncate(r.SubSkill, 28), r.Difficulty, r.Target, r.Existing, r.Deficit)
		fmt.Fprintln(&b, line+theme.ForCompletion(r.Completion).Render(fmt.Sprintf("%6.1f%%", r.Completion)))
	}
	fmt.Fprintln(&b, theme.Dim.Render(strings.Repeat("─", 86)))
	fmt.Fprintln(&b, renderTotals("Total", rep.Totals))
	return b.String()
}

// Render formats a product summary as a styled text table.
func (s *Summary) Render() string {
	var b strings.Builder
	fmt.Fprintln(&b, theme.Title.Render(s.TestType))
	modes := make([]string, len(s.Modes))
	for i, m := range s.Modes {
		modes[i] = string(m)
	}
	fmt.Fprintln(&b, theme.Dim.Render("modes: "+strings.Join(modes, ", ")))
	for _, w := range s.Warnings {
		fmt.Fprintln(&b, theme.Warn.Render("warning: "+w))
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, theme.Header.Render(fmt.Sprintf("%-24s  %6s  %8s  %7s  %s",
		"Section", "Target", "Existing", "Deficit", "Completion")))
	fmt.Fprintln(&b, theme.Dim.Render(strings.Repeat("─", 86)))
	for _, sec := range s.Sections {
		fmt.Fprintln(&b, renderTotals(sec.Section, sec.Totals))
	}
	fmt.Fprintln(&b, theme.Dim.Render(strings.Repeat("─", 86)))
	fmt.Fprintln(&b, renderTotals("Total", s.Totals))
	return b.String()
}

func renderTotals(label string, t Totals) string {
	bar := components.NewProgressBar("", t.Completion/100, false, barWidth).View()
	return fmt.Sprintf("%-24s  %6d  %8d  %7d  %s %s",
		truncate(label, 24), t.Target, t.Existing, t.Deficit, bar,
		theme.ForCompletion(t.Completion).Render(fmt.Sprintf("%.1f%%", t.Completion)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
