package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderView() string {
	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
		m.renderStats(),
		m.renderOutput(),
	}
	if line := m.renderLastAction(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" sidecar-supervisor │ %s │ port %d │ host up %s ",
		m.sidecarName,
		m.port,
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Status
// =============================================================================

func (m Model) renderStatus() string {
	rows := []string{
		sectionHeaderStyle.Render("Sidecar"),
		RenderKeyValue("Status", StatusLabel(m.snapshot.Running, m.exited, m.snapshot.Ready)),
	}

	if m.snapshot.Running {
		rows = append(rows,
			RenderKeyValue("PID", fmt.Sprintf("%d", m.snapshot.PID)),
			RenderKeyValue("Run", shortID(m.snapshot.RunID)),
			RenderKeyValue("Uptime", formatDuration(m.snapshot.Uptime)),
		)
	}

	if m.lastExit != nil {
		exit := fmt.Sprintf("code %d", m.lastExit.ExitCode)
		if m.lastExit.Signal != "" {
			exit += " (" + m.lastExit.Signal + ")"
		}
		rows = append(rows, RenderKeyValue("Exit", statusError.Render(exit)))
	}

	return boxStyle.Width(m.boxWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Stats
// =============================================================================

func (m Model) renderStats() string {
	rows := []string{
		sectionHeaderStyle.Render("History"),
		RenderKeyValue("Spawns", fmt.Sprintf("%d", m.stats.TotalStarts)),
		RenderKeyValue("Exits", fmt.Sprintf("%d", m.stats.TotalExits)),
		RenderKeyValue("Ready (last)", formatMs(m.stats.LastReadyTime)),
	}
	if m.stats.ReadySamples > 1 {
		rows = append(rows, RenderKeyValue("Ready p50/p95",
			formatMs(m.stats.ReadyP50)+" / "+formatMs(m.stats.ReadyP95)))
	}

	if len(m.errors) > 0 {
		keys := make([]string, 0, len(m.errors))
		for k := range m.errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s×%d", k, m.errors[k]))
		}
		rows = append(rows, RenderKeyValue("Error lines", statusWarning.Render(strings.Join(parts, " "))))
	}

	return boxStyle.Width(m.boxWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Output
// =============================================================================

func (m Model) renderOutput() string {
	rows := []string{sectionHeaderStyle.Render("Recent output")}

	if len(m.lines) == 0 {
		rows = append(rows, dimStyle.Render("(no output yet)"))
	}

	maxLen := m.boxWidth() - 4
	if maxLen < 20 {
		maxLen = 20
	}
	for _, l := range m.lines {
		text := l.Text
		if len(text) > maxLen {
			text = text[:maxLen-3] + "..."
		}
		if l.Stream == logging.StreamStderr {
			rows = append(rows, stderrLineStyle.Render(text))
		} else {
			rows = append(rows, text)
		}
	}

	return boxStyle.Width(m.boxWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderLastAction() string {
	if m.busy {
		return statusInfo.Render("working...")
	}
	if m.lastErr != nil {
		return statusError.Render(m.lastAction + ": " + m.lastErr.Error())
	}
	if m.lastAction != "" {
		return statusOK.Render(m.lastAction)
	}
	return ""
}

func (m Model) renderFooter() string {
	shortcuts := []string{
		"s: start",
		"x: stop",
		"r: refresh",
		"q: quit",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	if m.controlAddr == "" {
		return footerStyle.Render(left)
	}

	right := dimStyle.Render("control: http://" + m.controlAddr + "/sidecar/status")
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

func (m Model) boxWidth() int {
	if m.width < 40 {
		return 38
	}
	return m.width - 2
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
