// ABOUTME: Bubbletea model for the receive TUI
// ABOUTME: Shows stream status and latency, handles volume and resync keys
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2)
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// Model represents the TUI state
type Model struct {
	port       int
	streamName string

	// Stream
	streamCount int
	latencyMs   float64
	manual      bool

	// Playback
	volume int
	muted  bool

	// Errors
	errorMessage string

	control *Control

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.streamCount = msg.StreamCount
		m.latencyMs = msg.LatencyMs
		m.errorMessage = msg.ErrorMessage
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	mode := "calibrating"
	if m.manual {
		mode = "manual"
	}

	status := okStyle.Render("receiving")
	if m.errorMessage != "" {
		status = errorStyle.Render(m.errorMessage)
	}

	muteText := ""
	if m.muted {
		muteText = " (muted)"
	}

	body := fmt.Sprintf("%s\n\n%s %s\n%s %s\n%s %s\n%s %s\n%s %s%s\n\n%s",
		titleStyle.Render(fmt.Sprintf("VBAN Receiver :%d", m.port)),
		labelStyle.Render("Stream: "), valueStyle.Render(m.streamName),
		labelStyle.Render("Active: "), valueStyle.Render(fmt.Sprintf("%d stream(s)", m.streamCount)),
		labelStyle.Render("Latency:"), valueStyle.Render(fmt.Sprintf("%.1f ms (%s)", m.latencyMs, mode)),
		labelStyle.Render("Status: "), status,
		labelStyle.Render("Volume: "), valueStyle.Render(fmt.Sprintf("%s %d%%", renderBar(m.volume, 100, 10), m.volume)), muteText,
		helpStyle.Render("↑/↓: volume   m: mute   c: calibrate   r: resync   q: quit"))

	return borderStyle.Render(body) + "\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.control.signalQuit()
		return m, tea.Quit
	case "up":
		m.volume += 5
		if m.volume > 100 {
			m.volume = 100
		}
		m.control.sendVolume(m.volume)
	case "down":
		m.volume -= 5
		if m.volume < 0 {
			m.volume = 0
		}
		m.control.sendVolume(m.volume)
	case "m":
		m.muted = !m.muted
		m.control.sendMute(m.muted)
	case "c":
		m.manual = false
		m.control.signalCalibrate()
	case "r":
		m.control.signalResync()
	}

	return m, nil
}

// StatusMsg updates TUI state
type StatusMsg struct {
	StreamCount  int
	LatencyMs    float64
	ErrorMessage string
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}
