package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-pulse/scheduler"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#555")).Strikethrough(true)
	cursorStyle = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	beatStyle   = lipgloss.NewStyle().Reverse(true)
)

// refresh drives the playhead display between key presses.
const refreshInterval = 50 * time.Millisecond

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	sched    *scheduler.Scheduler
	cursor   int
	quitting bool
}

// New builds the transport view over a running scheduler.
func New(sched *scheduler.Scheduler) tea.Model {
	return model{sched: sched}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case " ":
			if m.sched.Playing() {
				m.sched.OnTransportStop()
			} else {
				m.sched.OnTransportStart(m.sched.CurrentBeat())
			}

		case "0":
			playing := m.sched.Playing()
			m.sched.OnTransportStop()
			if playing {
				m.sched.OnTransportStart(0)
			}

		case "j", "down":
			if m.cursor < len(m.sched.TrackStates())-1 {
				m.cursor++
			}

		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}

		case "m":
			states := m.sched.TrackStates()
			if m.cursor < len(states) {
				m.sched.SetMuted(m.cursor, !states[m.cursor].Muted)
				m.sched.Interrupt()
			}

		case "+", "=":
			m.sched.OnTempoChange(m.sched.Tempo() + 5)

		case "-", "_":
			m.sched.OnTempoChange(m.sched.Tempo() - 5)
		}

	case tickMsg:
		return m, tick()
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	ctx, _ := m.sched.Snapshot()
	beat := m.sched.CurrentBeat()
	bar, inBar := ctx.BarBeat(beat)

	playState := "stop"
	if m.sched.Playing() {
		playState = "play"
	}
	position := beatStyle.Render(fmt.Sprintf(" %03d:%d ", bar+1, int(inBar)+1))
	status := statusStyle.Render(fmt.Sprintf("%s  %.1fbpm  %s  %.0fHz",
		playState, ctx.Tempo, ctx.Sig, ctx.SampleRate))

	var lines []string
	lines = append(lines, fmt.Sprintf("%s %s", position, status))
	lines = append(lines, "")

	for i, tr := range m.sched.TrackStates() {
		name := tr.Name
		if name == "" {
			name = fmt.Sprintf("track %d", i)
		}
		style := activeStyle
		marker := "●"
		if tr.Muted {
			style = mutedStyle
			marker = "·"
		}
		line := style.Render(fmt.Sprintf("%s %-16s ch%2d", marker, name, tr.Channel+1))
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "")
	lines = append(lines, dimStyle.Render("space:play/stop  0:rewind  j/k:track  m:mute  +/-:tempo  q:quit"))

	return "\n" + strings.Join(lines, "\n") + "\n"
}

// Run blocks until the user quits.
func Run(sched *scheduler.Scheduler) error {
	_, err := tea.NewProgram(New(sched)).Run()
	return err
}
