package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// File rotation limits for the host log.
const (
	DefaultFileMaxSizeMB  = 10
	DefaultFileMaxBackups = 3
	DefaultFileMaxAgeDays = 14
)

// NewFileWriter returns a size-rotated writer at path, creating the parent
// directory if needed. The caller closes it on shutdown.
func NewFileWriter(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultFileMaxSizeMB,
		MaxBackups: DefaultFileMaxBackups,
		MaxAge:     DefaultFileMaxAgeDays,
		LocalTime:  true,
	}, nil
}

// DefaultFilePath is where the host log goes when nothing else is configured.
func DefaultFilePath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "host.log")
}
