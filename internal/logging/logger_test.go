package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := parseLevel(tc.input); got != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "JSON", "", "invalid"} {
		t.Run(format, func(t *testing.T) {
			if logger := NewLogger(format, "info", false); logger == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_VerboseOverride(t *testing.T) {
	logger := NewLogger("json", "error", true)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose logger should enable debug")
	}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "info")
	logger.Info("sidecar_started", "pid", 42)

	out := buf.String()
	if !strings.Contains(out, `"msg":"sidecar_started"`) {
		t.Errorf("expected JSON msg field, got %q", out)
	}
	if !strings.Contains(out, `"pid":42`) {
		t.Errorf("expected pid attribute, got %q", out)
	}
}

func TestNewLoggerWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "info")
	logger.Info("sidecar_stopped", "pid", 42)

	if !strings.Contains(buf.String(), "msg=sidecar_stopped") {
		t.Errorf("expected text format, got %q", buf.String())
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn should pass at warn level")
	}
}

func TestNewLoggerWithWriter_NilWriter(t *testing.T) {
	logger := NewLoggerWithWriter(nil, "json", "info")
	// Should not panic
	logger.Info("discarded")
}

func TestNewFileWriter(t *testing.T) {
	dir := t.TempDir()
	path := DefaultFilePath(dir)

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	logger := NewLoggerWithWriter(w, "json", "info")
	logger.Info("written_to_file")
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "written_to_file") {
		t.Errorf("log file missing entry: %q", data)
	}
	if filepath.Base(filepath.Dir(path)) != "logs" {
		t.Errorf("DefaultFilePath = %q, want logs/ subdirectory", path)
	}
}

func TestNewFileWriter_EmptyPath(t *testing.T) {
	if _, err := NewFileWriter(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestClassifyLine(t *testing.T) {
	testCases := []struct {
		line     string
		expected slog.Level
	}{
		{`{"level":30,"msg":"Server listening on port 3000"}`, slog.LevelInfo},
		{`{"level":50,"msg":"db failed"}`, slog.LevelError},
		{`{"level":60,"msg":"fatal"}`, slog.LevelError},
		{"Error: listen EADDRINUSE: address already in use :::3000", slog.LevelWarn},
		{"Error: Cannot find module 'vectordb'", slog.LevelWarn},
		{"(node:123) DeprecationWarning: something", slog.LevelWarn},
		{"    at Module._compile (node:internal/modules/cjs/loader:1105:14)", slog.LevelDebug},
		{"", slog.LevelDebug},
		{"Background worker started", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			if got := ClassifyLine(tc.line); got != tc.expected {
				t.Errorf("ClassifyLine(%q) = %v, want %v", tc.line, got, tc.expected)
			}
		})
	}
}

func TestOutputHandler_HandleLine(t *testing.T) {
	var buf bytes.Buffer
	h := NewOutputHandler(NewLoggerWithWriter(&buf, "json", "info"), 10, false)

	h.HandleLine(StreamStdout, "Server listening on port 3000")
	h.HandleLine(StreamStderr, "Error: boom")

	out := buf.String()
	if !strings.Contains(out, `"msg":"sidecar_stdout"`) {
		t.Errorf("missing stdout entry: %q", out)
	}
	if !strings.Contains(out, `"msg":"sidecar_stderr"`) {
		t.Errorf("missing stderr entry: %q", out)
	}

	lines := h.RecentLines(10)
	if len(lines) != 2 {
		t.Fatalf("RecentLines = %d lines, want 2", len(lines))
	}
	if lines[0].Stream != StreamStdout || lines[1].Stream != StreamStderr {
		t.Errorf("streams out of order: %+v", lines)
	}
}

func TestOutputHandler_DebugSuppressed(t *testing.T) {
	var buf bytes.Buffer
	h := NewOutputHandler(NewLoggerWithWriter(&buf, "json", "debug"), 10, false)

	h.HandleLine(StreamStderr, "    at foo (bar.js:1:1)")
	if buf.Len() != 0 {
		t.Errorf("non-verbose handler should not log debug lines: %q", buf.String())
	}

	verbose := NewOutputHandler(NewLoggerWithWriter(&buf, "json", "debug"), 10, true)
	verbose.HandleLine(StreamStderr, "    at foo (bar.js:1:1)")
	if buf.Len() == 0 {
		t.Error("verbose handler should log debug lines")
	}
}

func TestOutputHandler_Truncation(t *testing.T) {
	h := NewOutputHandler(NewLoggerWithWriter(nil, "json", "info"), 4, false)
	h.HandleLine(StreamStdout, strings.Repeat("x", MaxLineLength+100))

	lines := h.RecentLines(1)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0].Text, "...(truncated)") {
		t.Error("long line should be truncated")
	}
	if len(lines[0].Text) != MaxLineLength+len("...(truncated)") {
		t.Errorf("truncated length = %d", len(lines[0].Text))
	}
}

func TestOutputHandler_CircularBuffer(t *testing.T) {
	h := NewOutputHandler(NewLoggerWithWriter(nil, "json", "info"), 3, false)

	for i := 0; i < 5; i++ {
		h.HandleLine(StreamStdout, fmt.Sprintf("line %d", i))
	}

	lines := h.RecentLines(10)
	if len(lines) != 3 {
		t.Fatalf("RecentLines = %d, want 3", len(lines))
	}
	for i, want := range []string{"line 2", "line 3", "line 4"} {
		if lines[i].Text != want {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i].Text, want)
		}
	}

	if got := h.RecentLines(1); len(got) != 1 || got[0].Text != "line 4" {
		t.Errorf("RecentLines(1) = %+v", got)
	}
}

func TestOutputHandler_RecentLines_Empty(t *testing.T) {
	h := NewOutputHandler(NewLoggerWithWriter(nil, "json", "info"), 0, false)
	if lines := h.RecentLines(5); len(lines) != 0 {
		t.Errorf("expected no lines, got %d", len(lines))
	}
}

func TestOutputHandler_Reset(t *testing.T) {
	h := NewOutputHandler(NewLoggerWithWriter(nil, "json", "info"), 3, false)
	h.HandleLine(StreamStdout, "old")
	h.Reset()

	if lines := h.RecentLines(3); len(lines) != 0 {
		t.Errorf("Reset should drop lines, got %+v", lines)
	}
	h.HandleLine(StreamStdout, "new")
	if lines := h.RecentLines(3); len(lines) != 1 || lines[0].Text != "new" {
		t.Errorf("after Reset: %+v", lines)
	}
}

func TestOutputHandler_CountErrors(t *testing.T) {
	h := NewOutputHandler(NewLoggerWithWriter(nil, "json", "info"), 10, false)
	h.HandleLine(StreamStderr, "Error: listen EADDRINUSE: address already in use")
	h.HandleLine(StreamStderr, "Error: Cannot find module 'x'")
	h.HandleLine(StreamStdout, "fine")

	counts := h.CountErrors()
	if counts["Error:"] != 2 {
		t.Errorf("Error: count = %d, want 2", counts["Error:"])
	}
	if counts["EADDRINUSE"] != 1 {
		t.Errorf("EADDRINUSE count = %d, want 1", counts["EADDRINUSE"])
	}
	if counts["Cannot find module"] != 1 {
		t.Errorf("Cannot find module count = %d, want 1", counts["Cannot find module"])
	}
}

func TestOutputHandler_Concurrent(t *testing.T) {
	h := NewOutputHandler(NewLoggerWithWriter(nil, "json", "info"), 50, false)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.HandleLine(StreamStdout, fmt.Sprintf("g%d-%d", g, i))
				_ = h.RecentLines(5)
			}
		}(g)
	}
	wg.Wait()

	if lines := h.RecentLines(100); len(lines) != 50 {
		t.Errorf("RecentLines = %d, want 50", len(lines))
	}
}
