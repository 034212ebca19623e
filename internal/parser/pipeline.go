// Package parser provides lossy line pipelines for sidecar output.
//
// The sidecar writes to stdout/stderr pipes. If nothing drains them, the
// child blocks on write, so reading must never wait on whoever consumes
// the lines.
//
// Two-Layer Architecture:
//
//	Layer 1 (Reader): Reads lines fast, drops if channel full - never blocks
//	Layer 2 (Parser): Consumes from channel at own pace
package parser

import (
	"sync"
	"sync/atomic"
)

// LineParser consumes one line of output.
type LineParser interface {
	ParseLine(line string)
}

// LineParserFunc adapts a function to LineParser.
type LineParserFunc func(line string)

// ParseLine calls f(line).
func (f LineParserFunc) ParseLine(line string) { f(line) }

// LineSource abstracts the source of lines for a Pipeline.
//
// Lifecycle (MUST be followed by the owner):
//
//  1. source := NewPipeReader(...)
//  2. go source.Run()        // Start reading in goroutine
//  3. <-source.Done()        // Source exhausted, pipeline channel closed
//
// The source is responsible for calling pipeline.CloseChannel() on exit.
type LineSource interface {
	// Run starts reading lines and feeding them to the pipeline.
	// MUST call pipeline.CloseChannel() on exit (via defer).
	// Blocks until source is exhausted or closed.
	Run()

	// Done is closed once Run has returned.
	Done() <-chan struct{}

	// Err returns the read error that ended Run, if any (nil at EOF).
	Err() error

	// Stats returns (bytesRead, linesRead).
	Stats() (bytesRead int64, linesRead int64)
}

// Pipeline implements two-layer lossy-by-design line delivery.
//
// Lines are queued on a bounded channel. If the parser cannot keep up,
// lines are dropped rather than blocking the writer (the sidecar).
type Pipeline struct {
	streamType string // "stdout" or "stderr"
	bufferSize int

	lineChan  chan string
	closeOnce sync.Once // Ensures CloseChannel() is idempotent

	// Pipeline health metrics (atomic for concurrent access)
	linesRead    int64
	linesDropped int64
	linesParsed  int64

	// Configurable threshold for degradation detection
	dropThreshold float64
}

// NewPipeline creates a lossy pipeline.
//
// Parameters:
//   - streamType: "stdout" or "stderr" for identification
//   - bufferSize: Channel buffer size (lines)
//   - dropThreshold: Fraction (0.0-1.0) above which the stream is degraded
func NewPipeline(streamType string, bufferSize int, dropThreshold float64) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 1000 // Default
	}
	if dropThreshold <= 0 {
		dropThreshold = 0.01 // Default 1%
	}

	return &Pipeline{
		streamType:    streamType,
		bufferSize:    bufferSize,
		lineChan:      make(chan string, bufferSize),
		dropThreshold: dropThreshold,
	}
}

// FeedLine adds a line to the pipeline.
// Returns true if queued, false if dropped (channel full).
func (p *Pipeline) FeedLine(line string) bool {
	atomic.AddInt64(&p.linesRead, 1)

	select {
	case p.lineChan <- line:
		return true
	default:
		// Channel full - drop intentionally to avoid blocking the child
		atomic.AddInt64(&p.linesDropped, 1)
		return false
	}
}

// CloseChannel closes the line channel, signaling the parser to stop.
//
// This MUST be called by the data source when it is done; it is the sole
// mechanism for parser goroutine termination.
//
// Safe to call multiple times (idempotent via sync.Once).
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
	})
}

// RunParser is Layer 2: consumes lines at own pace.
//
// MUST run in dedicated goroutine. Blocks until lineChan is closed.
func (p *Pipeline) RunParser(parser LineParser) {
	for line := range p.lineChan {
		parser.ParseLine(line)
		atomic.AddInt64(&p.linesParsed, 1)
	}
}

// Stats returns pipeline health metrics.
//
// Returns:
//   - read: Total lines fed
//   - dropped: Lines dropped due to full channel
//   - parsed: Lines handed to the parser
func (p *Pipeline) Stats() (read, dropped, parsed int64) {
	return atomic.LoadInt64(&p.linesRead),
		atomic.LoadInt64(&p.linesDropped),
		atomic.LoadInt64(&p.linesParsed)
}

// DropRate returns the current drop rate as a fraction (0.0 to 1.0).
func (p *Pipeline) DropRate() float64 {
	read := atomic.LoadInt64(&p.linesRead)
	if read == 0 {
		return 0
	}
	dropped := atomic.LoadInt64(&p.linesDropped)
	return float64(dropped) / float64(read)
}

// IsDegraded returns true if drop rate exceeds the configured threshold.
func (p *Pipeline) IsDegraded() bool {
	return p.DropRate() > p.dropThreshold
}

// StreamType returns "stdout" or "stderr".
func (p *Pipeline) StreamType() string {
	return p.streamType
}

// NoopParser is a parser that does nothing (for testing/placeholder use).
type NoopParser struct{}

// ParseLine does nothing.
func (NoopParser) ParseLine(string) {}
