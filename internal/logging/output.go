package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// DefaultBufferedLines is how many recent lines are kept when no size is given.
	DefaultBufferedLines = 200
)

// Stream names for child output.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// OutputLine is one line of child output kept for display.
type OutputLine struct {
	Stream string
	Text   string
	Time   time.Time
}

// OutputHandler logs sidecar stdout/stderr lines and keeps the most
// recent ones in a circular buffer for the control panel.
type OutputHandler struct {
	logger  *slog.Logger
	verbose bool

	buffer []OutputLine
	bufIdx int
	count  int
	mu     sync.Mutex
}

// NewOutputHandler creates a handler keeping up to size recent lines.
func NewOutputHandler(logger *slog.Logger, size int, verbose bool) *OutputHandler {
	if size <= 0 {
		size = DefaultBufferedLines
	}
	return &OutputHandler{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]OutputLine, size),
	}
}

// HandleLine processes a single line from the named stream.
func (h *OutputHandler) HandleLine(stream, line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = OutputLine{Stream: stream, Text: line, Time: time.Now()}
	h.bufIdx = (h.bufIdx + 1) % len(h.buffer)
	if h.count < len(h.buffer) {
		h.count++
	}
	h.mu.Unlock()

	h.logLine(stream, line)
}

// logLine logs the line at a level chosen from its stream and content.
func (h *OutputHandler) logLine(stream, line string) {
	level := ClassifyLine(line)

	// In non-verbose mode, chatter stays out of the log
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "sidecar_"+stream, "line", line)
}

// ClassifyLine determines the log level for a line of child output.
func ClassifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	// pino levels 50 (error) and 60 (fatal)
	if strings.Contains(lower, `"level":50`) || strings.Contains(lower, `"level":60`) {
		return slog.LevelError
	}

	for _, pattern := range ErrorPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return slog.LevelWarn
		}
	}

	if strings.Contains(lower, "warn") || strings.Contains(lower, "deprecat") {
		return slog.LevelWarn
	}

	// Empty lines and stack noise
	if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "at ") {
		return slog.LevelDebug
	}

	return slog.LevelInfo
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []OutputLine {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > h.count {
		n = h.count
	}
	if n <= 0 {
		return nil
	}

	size := len(h.buffer)
	lines := make([]OutputLine, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + size) % size
		lines = append(lines, h.buffer[idx])
	}

	return lines
}

// Reset drops buffered lines, called when a new child is spawned.
func (h *OutputHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.buffer {
		h.buffer[i] = OutputLine{}
	}
	h.bufIdx = 0
	h.count = 0
}

// ErrorPatterns are common failure patterns of a Node-style sidecar.
var ErrorPatterns = []string{
	"EADDRINUSE",
	"ECONNREFUSED",
	"EACCES",
	"Cannot find module",
	"Unhandled",
	"Error:",
	"panic:",
}

// CountErrors counts occurrences of error patterns in the buffer.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)

	for _, line := range h.buffer {
		if line.Text == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line.Text, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
