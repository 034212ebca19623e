package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
	"github.com/randomizedcoder/sidecar-supervisor/internal/metrics"
	"github.com/randomizedcoder/sidecar-supervisor/internal/supervisor"
)

// =============================================================================
// Mocks
// =============================================================================

type mockController struct {
	snapshot supervisor.Snapshot
	startRes supervisor.StartResult
	stopRes  supervisor.StopResult
	err      error
	starts   int
	stops    int
}

func (m *mockController) Start() (supervisor.StartResult, error) {
	m.starts++
	if m.err == nil && m.startRes == supervisor.Started {
		m.snapshot = supervisor.Snapshot{Running: true, PID: 4242, RunID: "0123456789abcdef"}
	}
	return m.startRes, m.err
}

func (m *mockController) Stop() (supervisor.StopResult, error) {
	m.stops++
	m.snapshot = supervisor.Snapshot{}
	return m.stopRes, m.err
}

func (m *mockController) Snapshot() supervisor.Snapshot {
	return m.snapshot
}

type mockOutput struct {
	lines []logging.OutputLine
	errs  map[string]int
}

func (m *mockOutput) RecentLines(n int) []logging.OutputLine { return m.lines }
func (m *mockOutput) CountErrors() map[string]int          { return m.errs }

type mockSummary struct {
	summary metrics.Summary
}

func (m *mockSummary) GenerateSummary() metrics.Summary { return m.summary }

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

// update applies msg and returns the concrete model.
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

// =============================================================================
// Tests
// =============================================================================

func TestNew(t *testing.T) {
	m := New(Config{SidecarName: "openprofia-server", Port: 3000, ControlAddr: "127.0.0.1:17092"})

	if m.sidecarName != "openprofia-server" || m.port != 3000 {
		t.Errorf("config not applied: %+v", m)
	}
	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", m.width, m.height)
	}
	if m.Init() == nil {
		t.Error("Init() returned nil cmd")
	}
}

func TestModel_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"r", false},
		{"z", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, cmd := update(t, New(Config{}), keyMsg(tt.key))
			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}
			if tt.wantQuit {
				if cmd == nil {
					t.Fatal("quit key should return a command")
				}
				if _, ok := cmd().(tea.QuitMsg); !ok {
					t.Error("quit key should return tea.Quit")
				}
				if m.View() != "" {
					t.Error("View() should be empty once quitting")
				}
			}
		})
	}
}

func TestModel_StartKey(t *testing.T) {
	ctrl := &mockController{startRes: supervisor.Started}
	m := New(Config{Controller: ctrl})

	m, cmd := update(t, m, keyMsg("s"))
	if cmd == nil {
		t.Fatal("s should return a command")
	}
	if !m.busy {
		t.Error("model should be busy while starting")
	}

	// A second press while busy is ignored.
	if _, again := update(t, m, keyMsg("s")); again != nil {
		t.Error("start while busy should be ignored")
	}

	msg := cmd()
	action, ok := msg.(ActionMsg)
	if !ok {
		t.Fatalf("command returned %T, want ActionMsg", msg)
	}
	if action.Op != "start" || action.Result != "started" || action.Err != nil {
		t.Errorf("action = %+v", action)
	}
	if ctrl.starts != 1 {
		t.Errorf("starts = %d, want 1", ctrl.starts)
	}

	m, _ = update(t, m, action)
	if m.busy {
		t.Error("busy should clear after the action")
	}
	if !m.snapshot.Running || m.snapshot.PID != 4242 {
		t.Errorf("snapshot not refreshed: %+v", m.snapshot)
	}
	if !strings.Contains(m.View(), "start: started") {
		t.Error("view should show the last action")
	}
}

func TestModel_StopKeyError(t *testing.T) {
	stopErr := &supervisor.Error{Kind: supervisor.KindSignal, Err: errors.New("operation not permitted")}
	ctrl := &mockController{err: stopErr}
	m := New(Config{Controller: ctrl})

	m, cmd := update(t, m, keyMsg("x"))
	m, _ = update(t, m, cmd())

	if ctrl.stops != 1 {
		t.Errorf("stops = %d, want 1", ctrl.stops)
	}
	if m.lastErr == nil {
		t.Fatal("lastErr should be set")
	}
	if !strings.Contains(m.View(), "failed to kill sidecar") {
		t.Error("view should show the error message")
	}
}

func TestModel_KeysWithoutController(t *testing.T) {
	m := New(Config{})
	for _, k := range []string{"s", "x"} {
		if _, cmd := update(t, m, keyMsg(k)); cmd != nil {
			t.Errorf("%s without controller should do nothing", k)
		}
	}
}

func TestModel_TerminatedEvent(t *testing.T) {
	ctrl := &mockController{snapshot: supervisor.Snapshot{Running: true, PID: 77, Ready: true}}
	m := New(Config{Controller: ctrl})
	m, _ = update(t, m, TickMsg(time.Now()))

	// An event for another pid is ignored.
	m, _ = update(t, m, EventMsg{Kind: supervisor.EventTerminated, PID: 1, ExitCode: 1})
	if m.Exited() {
		t.Error("event for another pid should be ignored")
	}

	m, _ = update(t, m, EventMsg{Kind: supervisor.EventTerminated, PID: 77, ExitCode: 137, Signal: "killed"})
	if !m.Exited() {
		t.Fatal("Exited() should be true")
	}

	view := m.View()
	if !strings.Contains(view, "exited") {
		t.Error("view should flag the exited child")
	}
	if !strings.Contains(view, "code 137 (killed)") {
		t.Error("view should show the exit code and signal")
	}

	// Releasing the slot clears the flag.
	ctrl.snapshot = supervisor.Snapshot{}
	m, _ = update(t, m, TickMsg(time.Now()))
	if m.Exited() {
		t.Error("Exited() should clear once the pid changes")
	}
}

func TestModel_TickPullsSources(t *testing.T) {
	out := &mockOutput{
		lines: []logging.OutputLine{
			{Stream: logging.StreamStdout, Text: "🚀 Server listening on port 3000"},
			{Stream: logging.StreamStderr, Text: "Error: EADDRINUSE"},
		},
		errs: map[string]int{"EADDRINUSE": 1, "Error:": 1},
	}
	sum := &mockSummary{summary: metrics.Summary{
		TotalStarts:   2,
		TotalExits:    1,
		LastReadyTime: 850 * time.Millisecond,
		ReadySamples:  2,
		ReadyP50:      800 * time.Millisecond,
		ReadyP95:      900 * time.Millisecond,
	}}
	ctrl := &mockController{snapshot: supervisor.Snapshot{Running: true, PID: 9, RunID: "abcdef0123", Ready: true}}

	m := New(Config{SidecarName: "openprofia-server", Port: 3000, Controller: ctrl, Output: out, Summary: sum})
	m, cmd := update(t, m, TickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}

	view := m.View()
	for _, want := range []string{
		"openprofia-server",
		"running, ready",
		"abcdef01",
		"Server listening on port 3000",
		"EADDRINUSE×1",
		"850 ms",
		"800 ms / 900 ms",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_WindowSize(t *testing.T) {
	m, _ := update(t, New(Config{}), tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
}

func TestModel_QuitMsg(t *testing.T) {
	m, cmd := update(t, New(Config{}), QuitMsg{})
	if !m.quitting || cmd == nil {
		t.Error("QuitMsg should quit")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		running, exited, ready bool
		want                   string
	}{
		{false, false, false, "stopped"},
		{true, true, true, "exited"},
		{true, false, true, "ready"},
		{true, false, false, "starting up"},
	}

	for _, tt := range tests {
		if got := StatusLabel(tt.running, tt.exited, tt.ready); !strings.Contains(got, tt.want) {
			t.Errorf("StatusLabel(%v, %v, %v) = %q, want %q", tt.running, tt.exited, tt.ready, got, tt.want)
		}
	}
}

func TestFormatting(t *testing.T) {
	if got := formatDuration(3723 * time.Second); got != "01:02:03" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := formatMs(0); got != "-" {
		t.Errorf("formatMs(0) = %q", got)
	}
	if got := formatMs(1500 * time.Millisecond); got != "1500 ms" {
		t.Errorf("formatMs = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}
