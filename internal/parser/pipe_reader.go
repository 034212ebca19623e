package parser

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// maxLineSize bounds a single line; longer lines end the scan with
// bufio.ErrTooLong.
const maxLineSize = 1024 * 1024

// PipeReader reads lines from an io.Reader (the sidecar's stdout/stderr
// pipe) into a Pipeline. Implements LineSource.
type PipeReader struct {
	reader   io.Reader
	pipeline *Pipeline
	tap      LineParser

	done chan struct{}

	errMu sync.Mutex
	err   error

	// Stats (atomic for thread-safety)
	bytesRead atomic.Int64
	linesRead atomic.Int64
}

// NewPipeReader creates a new pipe-based line source.
//
// The reader is typically cmd.StdoutPipe() or cmd.StderrPipe().
func NewPipeReader(r io.Reader, pipeline *Pipeline) *PipeReader {
	return &PipeReader{
		reader:   r,
		pipeline: pipeline,
		done:     make(chan struct{}),
	}
}

// WithTap sets a parser that sees every line synchronously, before the
// lossy channel. It must be cheap; it runs on the read path.
func (p *PipeReader) WithTap(tap LineParser) *PipeReader {
	p.tap = tap
	return p
}

// Run reads lines until EOF or a read error. Implements LineSource.
func (p *PipeReader) Run() {
	defer close(p.done)
	// Pipeline channel MUST be closed on exit
	defer p.pipeline.CloseChannel()

	scanner := bufio.NewScanner(p.reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		p.bytesRead.Add(int64(len(line) + 1)) // +1 for newline
		p.linesRead.Add(1)
		if p.tap != nil {
			p.tap.ParseLine(line)
		}
		p.pipeline.FeedLine(line)
	}

	if err := scanner.Err(); err != nil {
		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()
		// Keep draining so the child never blocks on a full pipe
		_, _ = io.Copy(io.Discard, p.reader)
	}
}

// Done is closed when Run returns. Implements LineSource.
func (p *PipeReader) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that stopped the scan, or nil at EOF.
// Implements LineSource.
func (p *PipeReader) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Stats returns (bytesRead, linesRead). Implements LineSource.
func (p *PipeReader) Stats() (bytesRead int64, linesRead int64) {
	return p.bytesRead.Load(), p.linesRead.Load()
}

// Ensure PipeReader implements LineSource interface
var _ LineSource = (*PipeReader)(nil)
