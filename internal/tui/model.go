package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
	"github.com/randomizedcoder/sidecar-supervisor/internal/metrics"
	"github.com/randomizedcoder/sidecar-supervisor/internal/supervisor"
)

// outputLines is how many recent output lines the panel shows.
const outputLines = 8

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// ActionMsg carries the outcome of a start or stop issued from the panel.
type ActionMsg struct {
	Op     string
	Result string
	Err    error
}

// EventMsg carries one event from the supervisor's listener.
type EventMsg supervisor.Event

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Sources
// =============================================================================

// Controller is the supervisor surface the panel drives.
type Controller interface {
	Start() (supervisor.StartResult, error)
	Stop() (supervisor.StopResult, error)
	Snapshot() supervisor.Snapshot
}

// OutputSource provides recent child output.
type OutputSource interface {
	RecentLines(n int) []logging.OutputLine
	CountErrors() map[string]int
}

// SummarySource provides collector aggregates.
type SummarySource interface {
	GenerateSummary() metrics.Summary
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	sidecarName string
	port        int
	controlAddr string

	// Sources
	controller Controller
	output     OutputSource
	summary    SummarySource

	// Current state
	snapshot   supervisor.Snapshot
	lines      []logging.OutputLine
	errors     map[string]int
	stats      metrics.Summary
	lastAction string
	lastErr    error
	exited     bool
	lastExit   *EventMsg
	busy       bool
	startTime  time.Time

	// Display options
	width  int
	height int

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	SidecarName string
	Port        int
	ControlAddr string
	Controller  Controller
	Output      OutputSource
	Summary     SummarySource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		sidecarName: cfg.SidecarName,
		port:        cfg.Port,
		controlAddr: cfg.ControlAddr,
		controller:  cfg.Controller,
		output:      cfg.Output,
		summary:     cfg.Summary,
		startTime:   time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(), tickCmd())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "s":
			if m.busy || m.controller == nil {
				return m, nil
			}
			m.busy = true
			return m, startCmd(m.controller)
		case "x":
			if m.busy || m.controller == nil {
				return m, nil
			}
			m.busy = true
			return m, stopCmd(m.controller)
		case "r":
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case ActionMsg:
		m.busy = false
		m.lastErr = msg.Err
		if msg.Err != nil {
			m.lastAction = msg.Op + " failed"
		} else {
			m.lastAction = msg.Op + ": " + msg.Result
			if msg.Result == supervisor.Started.String() {
				m.exited = false
				m.lastExit = nil
			}
		}
		m.refresh()
		return m, nil

	case EventMsg:
		if msg.Kind == supervisor.EventTerminated && msg.PID == m.snapshot.PID {
			ev := msg
			m.exited = true
			m.lastExit = &ev
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderView()
}

// refresh pulls the latest state from the sources.
func (m *Model) refresh() {
	if m.controller != nil {
		snap := m.controller.Snapshot()
		if snap.PID != m.snapshot.PID {
			m.exited = false
		}
		m.snapshot = snap
	}
	if m.output != nil {
		m.lines = m.output.RecentLines(outputLines)
		m.errors = m.output.CountErrors()
	}
	if m.summary != nil {
		m.stats = m.summary.GenerateSummary()
	}
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return TickMsg(time.Now())
	}
}

func startCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		result, err := c.Start()
		return ActionMsg{Op: "start", Result: result.String(), Err: err}
	}
}

func stopCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		result, err := c.Stop()
		return ActionMsg{Op: "stop", Result: result.String(), Err: err}
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the panel started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Exited reports whether the listener saw the held child exit.
func (m Model) Exited() bool {
	return m.exited
}

// =============================================================================
// Helpers for external use
// =============================================================================

// ForwardEvents sends every event from events to p until events closes.
func ForwardEvents(p *tea.Program, events <-chan supervisor.Event) {
	for ev := range events {
		p.Send(EventMsg(ev))
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatMs formats a duration in milliseconds, or "-" when zero.
func formatMs(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return fmt.Sprintf("%d ms", d.Milliseconds())
}
