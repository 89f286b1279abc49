// Package runview is a live Bubble Tea view of a generation run. It shows
// phase, progress against the planned deficit and running cost, and turns
// Ctrl+C into a cooperative cancellation of the run.
package runview

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/qbankgen/internal/orchestrator"
	"github.com/abhisek/qbankgen/internal/ui/components"
	"github.com/abhisek/qbankgen/internal/ui/theme"
)

// ProgressMsg carries one orchestrator progress update.
type ProgressMsg orchestrator.Progress

// DoneMsg signals that the run returned.
type DoneMsg struct{ Err error }

const maxRecent = 6

// Model is the run view.
type Model struct {
	title      string
	cancel     context.CancelFunc
	sections   map[string]orchestrator.Progress
	order      []string
	recent     []string
	width      int
	done       bool
	cancelling bool
	err        error
}

// New creates the view. cancel is called on the first Ctrl+C.
func New(title string, cancel context.CancelFunc) Model {
	return Model{
		title:    title,
		cancel:   cancel,
		sections: make(map[string]orchestrator.Progress),
		width:    80,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.done || m.cancelling {
				return m, tea.Quit
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case ProgressMsg:
		p := orchestrator.Progress(msg)
		key := fmt.Sprintf("%s/%s", p.Section, p.Mode)
		if prev, ok := m.sections[key]; !ok {
			m.order = append(m.order, key)
		} else if p.Phase == orchestrator.PhaseGenerating && p.Generated+p.Failed > prev.Generated+prev.Failed {
			status := theme.Good.Render("✓")
			if p.Failed > prev.Failed {
				status = theme.Bad.Render("✗")
			}
			m.recent = append(m.recent, fmt.Sprintf("%s %s", status, p.Cell))
			if len(m.recent) > maxRecent {
				m.recent = m.recent[len(m.recent)-maxRecent:]
			}
		}
		m.sections[key] = p
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() tea.View {
	return tea.NewView(m.render())
}

func (m Model) render() string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(m.title))
	b.WriteString("\n\n")

	var cost float64
	for _, key := range m.order {
		p := m.sections[key]
		cost += p.CostUSD
		pct := 1.0
		if p.Deficit > 0 {
			pct = float64(p.Generated) / float64(p.Deficit)
		}
		label := fmt.Sprintf("%-28s %-10s", key, p.Phase)
		bar := components.NewProgressBar(label, pct, true, max(m.width-24, 40)).View()
		fmt.Fprintf(&b, "%s  %s\n", bar, theme.Dim.Render(fmt.Sprintf("%d/%d  failed %d", p.Generated, p.Deficit, p.Failed)))
	}

	if len(m.recent) > 0 {
		b.WriteString("\n")
		for _, r := range m.recent {
			b.WriteString("  " + r + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(theme.Dim.Render(fmt.Sprintf("cost so far: $%.4f", cost)))
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(theme.Bad.Render("error: " + m.err.Error()))
	case m.done:
		b.WriteString(theme.Good.Render("done"))
	case m.cancelling:
		b.WriteString(theme.Warn.Render("cancelling after the current cell… (Ctrl+C again to stop watching)"))
	default:
		b.WriteString(theme.Dim.Render("Ctrl+C to stop after the current cell"))
	}
	b.WriteString("\n")
	return b.String()
}

// Run starts the view and runs fn alongside it. fn receives a context that
// is cancelled on Ctrl+C and a progress callback to pass to the
// orchestrator. Run returns fn's error once fn has returned.
func Run(ctx context.Context, title string, fn func(ctx context.Context, progress func(orchestrator.Progress)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(title, cancel))
	done := make(chan error, 1)
	go func() {
		err := fn(ctx, func(pr orchestrator.Progress) { p.Send(ProgressMsg(pr)) })
		done <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("run view: %w", err)
	}
	return <-done
}
