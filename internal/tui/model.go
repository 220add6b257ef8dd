// Package tui implements the optional --tui live trace viewer.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hotdoglinux/amiganarrator/internal/trace"
)

var (
	tagStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	pcStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	nameStyle = lipgloss.NewStyle().Bold(true)
)

// eventMsg carries one trace event into the bubbletea update loop.
type eventMsg *trace.Event

// doneMsg signals that emulation has finished.
type doneMsg struct{ err error }

// Model is the bubbletea model backing the --tui viewer.
type Model struct {
	events   <-chan *trace.Event
	done     <-chan error
	vp       viewport.Model
	lines    []string
	finished bool
	err      error
}

// New builds a Model that reads trace events from events until done fires.
func New(events <-chan *trace.Event, done <-chan error) Model {
	vp := viewport.New(80, 20)
	return Model{events: events, done: done, vp: vp}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), waitForDone(m.done))
}

func waitForEvent(events <-chan *trace.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func waitForDone(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-done}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - 2
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd

	case eventMsg:
		m.lines = append(m.lines, formatEvent(msg))
		m.vp.SetContent(joinLines(m.lines))
		m.vp.GotoBottom()
		return m, waitForEvent(m.events)

	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	status := "running"
	if m.finished {
		if m.err != nil {
			status = fmt.Sprintf("halted: %v", m.err)
		} else {
			status = "halted"
		}
	}
	return m.vp.View() + "\n" + lipgloss.NewStyle().Faint(true).Render(status+" (q to quit)")
}

func formatEvent(e *trace.Event) string {
	tag := e.PrimaryTag()
	return fmt.Sprintf("%s %s %s %s",
		pcStyle.Render(fmt.Sprintf("%08x", e.PC)),
		tagStyle.Render(tag),
		nameStyle.Render(e.Name),
		e.Detail,
	)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
