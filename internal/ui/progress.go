// Package ui renders run progress for the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"strand/internal/jobs"
)

type progressModel struct {
	title   string
	events  <-chan jobs.Event
	spinner spinner.Model
	prog    progress.Model
	items   []jobItem
	index   map[string]int
	width   int
	done    bool
}

type jobItem struct {
	name     string
	status   jobs.Status
	bytesOut int
}

type eventMsg jobs.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders job progress.
// The model quits when the events channel closes.
func NewProgressModel(title string, jobList []jobs.Job, events <-chan jobs.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]jobItem, 0, len(jobList))
	index := make(map[string]int, len(jobList))
	for i, job := range jobList {
		items = append(items, jobItem{name: job.Name, status: jobs.StatusQueued})
		index[job.ID] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(jobs.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progModel, cmd := m.prog.Update(msg)
		m.prog = progModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 10
	nameWidth := m.width - statusWidth - 16
	if nameWidth < 20 {
		nameWidth = 20
	}

	for _, item := range m.items {
		name := truncate(item.name, nameWidth)
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%10s", item.status))
		line := fmt.Sprintf("  %s %s", statusStyled, name)
		if item.bytesOut > 0 {
			line += lipgloss.NewStyle().Faint(true).Render(
				fmt.Sprintf("  %s", humanize.Bytes(uint64(item.bytesOut))))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev jobs.Event) tea.Cmd {
	idx, ok := m.index[ev.JobID]
	if !ok {
		return nil
	}
	m.items[idx].status = ev.Status
	m.items[idx].bytesOut = ev.BytesOut

	finished := 0
	for _, item := range m.items {
		switch item.status {
		case jobs.StatusOK, jobs.StatusFailed, jobs.StatusTimedOut:
			finished++
		}
	}
	return m.prog.SetPercent(float64(finished) / float64(len(m.items)))
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func styleStatus(status jobs.Status) lipgloss.Style {
	switch status {
	case jobs.StatusOK:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case jobs.StatusFailed, jobs.StatusTimedOut:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case jobs.StatusRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Faint(true)
	}
}
