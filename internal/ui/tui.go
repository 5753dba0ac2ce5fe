// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and its control channels
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Control carries user actions from the TUI to the application.
type Control struct {
	Volume    chan int
	Mute      chan bool
	Calibrate chan struct{}
	Resync    chan struct{}
	Quit      chan struct{}
}

// NewControl creates the control channels.
func NewControl() *Control {
	return &Control{
		Volume:    make(chan int, 10),
		Mute:      make(chan bool, 10),
		Calibrate: make(chan struct{}, 1),
		Resync:    make(chan struct{}, 1),
		Quit:      make(chan struct{}, 1),
	}
}

func (c *Control) sendVolume(v int) {
	select {
	case c.Volume <- v:
	default:
	}
}

func (c *Control) sendMute(muted bool) {
	select {
	case c.Mute <- muted:
	default:
	}
}

func (c *Control) signalCalibrate() {
	select {
	case c.Calibrate <- struct{}{}:
	default:
	}
}

func (c *Control) signalResync() {
	select {
	case c.Resync <- struct{}{}:
	default:
	}
}

func (c *Control) signalQuit() {
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(port int, streamName string, manual bool, control *Control) Model {
	return Model{
		port:       port,
		streamName: streamName,
		manual:     manual,
		volume:     100,
		control:    control,
	}
}

// Run starts the TUI
func Run(port int, streamName string, manual bool, control *Control) *tea.Program {
	return tea.NewProgram(NewModel(port, streamName, manual, control), tea.WithAltScreen())
}
