package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/truncate"

	"vidgrab/internal/supervisor"
)

const (
	maxOutputLines  = 200
	outputPaneLines = 8
	defaultWidth    = 80
)

// downloadModel renders one download session: a progress bar over a
// scrolling tail of the tool's output.
type downloadModel struct {
	events <-chan supervisor.Event
	cancel func() bool

	url     string
	dest    string
	started time.Time

	progress progress.Model
	output   viewport.Model
	lines    []string
	percent  float64

	width      int
	cancelling bool
	finished   bool
}

type eventMsg supervisor.Event
type streamClosedMsg struct{}
type tickMsg struct{}

const tickInterval = time.Second

func newDownloadModel(events <-chan supervisor.Event, cancel func() bool, url, dest string) *downloadModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(defaultWidth-4),
	)
	vp := viewport.New(defaultWidth-2, outputPaneLines)
	return &downloadModel{
		events:   events,
		cancel:   cancel,
		url:      url,
		dest:     dest,
		started:  time.Now(),
		progress: p,
		output:   vp,
		width:    defaultWidth,
	}
}

func (m *downloadModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), tick())
}

// tick redraws the elapsed time while the tool is silent.
func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *downloadModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *downloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil

	case eventMsg:
		var cmds []tea.Cmd
		switch msg.Kind {
		case supervisor.EventProgress:
			m.percent = msg.Percent
			cmds = append(cmds, m.progress.SetPercent(msg.Percent/100))
		case supervisor.EventOutput:
			m.appendLine(msg.Line)
		}
		cmds = append(cmds, m.waitForEvent())
		return m, tea.Batch(cmds...)

	case tickMsg:
		if m.finished {
			return m, nil
		}
		return m, tick()

	case streamClosedMsg:
		m.finished = true
		return m, tea.Quit

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Keep draining until the session closes its stream.
			if !m.cancelling && m.cancel != nil {
				m.cancelling = m.cancel()
			}
		}
		return m, nil
	}
	return m, nil
}

func (m *downloadModel) resize(width int) {
	if width <= 0 {
		return
	}
	m.width = width
	m.progress.Width = max(width-4, 10)
	m.output.Width = max(width-2, 10)
	m.refreshOutput()
}

func (m *downloadModel) appendLine(line string) {
	m.lines = append(m.lines, ansi.Strip(line))
	if len(m.lines) > maxOutputLines {
		m.lines = m.lines[len(m.lines)-maxOutputLines:]
	}
	m.refreshOutput()
}

func (m *downloadModel) refreshOutput() {
	width := uint(max(m.output.Width, 1))
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = truncate.StringWithTail(l, width, "…")
	}
	m.output.SetContent(strings.Join(rendered, "\n"))
	m.output.GotoBottom()
}

func (m *downloadModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Downloading"))
	b.WriteString(" ")
	b.WriteString(accentStyle.Render(truncate.StringWithTail(m.url, uint(max(m.width-14, 10)), "…")))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("to " + m.dest))
	b.WriteString("\n\n")

	b.WriteString(m.progress.View())
	b.WriteString(" ")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%5.1f%%", m.percent)))
	b.WriteString("\n\n")

	if len(m.lines) > 0 {
		b.WriteString(m.output.View())
		b.WriteString("\n\n")
	}

	switch {
	case m.finished:
	case m.cancelling:
		b.WriteString(warnStyle.Render("Cancelling..."))
	default:
		b.WriteString(labelStyle.Render(fmt.Sprintf("%s elapsed • q to cancel", formatDuration(time.Since(m.started)))))
	}
	return containerStyle.Render(b.String())
}
