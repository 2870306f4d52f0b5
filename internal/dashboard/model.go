// Package dashboard is the external, independently-launched viewer for a
// single monitored PR: it tails the session's status log and renders the
// latest known state plus recent scrollback. Grounded on the teacher's
// internal/dashboard/tui.go bubbletea+lipgloss model, trimmed from a
// multi-task fleet dashboard down to a single append-only log tail.
package dashboard

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 500 * time.Millisecond

const maxScrollback = 200

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7eb8da"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3d4450"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7ec699"))

	terminalStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#d4a054"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d48a8a"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6e7681"))
)

// Model is the dashboard's bubbletea model. It owns no mutable monitor
// state of its own: every line on screen came from the log file.
type Model struct {
	logPath string
	offset  int64
	lines   []string
	width   int
	height  int
	quitting bool
}

// NewModel builds a dashboard model that will tail logPath.
func NewModel(logPath string) Model {
	return Model{logPath: logPath}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.readNewLines()
		return m, tick()
	}
	return m, nil
}

// readNewLines tails the log file from the last known offset. A file that
// has shrunk since the last read was truncated and restarted underneath
// us (the session supervisor reopens it fresh on every Start); reset the
// offset and scrollback to zero in that case rather than erroring.
func (m *Model) readNewLines() {
	info, err := os.Stat(m.logPath)
	if err != nil {
		return
	}
	if info.Size() < m.offset {
		m.offset = 0
		m.lines = nil
	}

	f, err := os.Open(m.logPath)
	if err != nil {
		return
	}
	defer f.Close()

	if _, err := f.Seek(m.offset, 0); err != nil {
		return
	}

	buf := make([]byte, info.Size()-m.offset)
	n, _ := f.Read(buf)
	m.offset += int64(n)

	for _, line := range strings.Split(strings.TrimRight(string(buf[:n]), "\n"), "\n") {
		if line == "" {
			continue
		}
		m.lines = append(m.lines, line)
	}
	if len(m.lines) > maxScrollback {
		m.lines = m.lines[len(m.lines)-maxScrollback:]
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("pr-monitor"))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(m.logPath))
	b.WriteString("\n")
	b.WriteString(borderStyle.Render(strings.Repeat("─", 60)))
	b.WriteString("\n")

	for _, line := range m.scrollbackWindow() {
		b.WriteString(renderLine(line))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q to quit"))
	return b.String()
}

// scrollbackWindow returns the tail of m.lines that fits the terminal
// height, leaving room for the title, separator, and help line.
func (m Model) scrollbackWindow() []string {
	budget := m.height - 3
	if budget <= 0 || budget >= len(m.lines) {
		return m.lines
	}
	return m.lines[len(m.lines)-budget:]
}

func renderLine(line string) string {
	tag, rest, ok := strings.Cut(line, "|")
	if !ok {
		return dimStyle.Render(line)
	}
	switch tag {
	case "STATUS":
		return statusStyle.Render(fmt.Sprintf("[status] %s", rest))
	case "TERMINAL":
		return terminalStyle.Render(fmt.Sprintf("[terminal] %s", rest))
	case "ERROR":
		return errorStyle.Render(fmt.Sprintf("[error] %s", rest))
	default:
		return dimStyle.Render(line)
	}
}
