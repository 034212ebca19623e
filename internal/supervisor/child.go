package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/sidecar-supervisor/internal/logging"
	"github.com/randomizedcoder/sidecar-supervisor/internal/parser"
	"github.com/randomizedcoder/sidecar-supervisor/internal/process"
)

// eventBufferSize bounds the per-child event channel between the
// pipeline parsers and the listener.
const eventBufferSize = 64

// Child is the handle to one spawned sidecar. It is owned by the
// supervisor while stored in the slot.
type Child struct {
	cmd     *exec.Cmd
	pid     int
	runID   string
	started time.Time

	events    chan Event
	readiness *parser.ReadinessParser

	stdoutPipeline *parser.Pipeline
	stderrPipeline *parser.Pipeline

	// done is closed once the process has been reaped.
	done chan struct{}
}

// spawnConfig carries the per-start settings for spawn.
type spawnConfig struct {
	runID       string
	readyMarker string
	bufferSize  int
}

// spawn starts cmd with both output streams piped into lossy pipelines
// and returns the running child. Events flow on child.events until the
// child is reaped, after which the channel is closed.
func spawn(cmd *exec.Cmd, cfg spawnConfig) (*Child, error) {
	process.SetProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := &Child{
		cmd:            cmd,
		pid:            cmd.Process.Pid,
		runID:          cfg.runID,
		started:        started,
		events:         make(chan Event, eventBufferSize),
		readiness:      parser.NewReadinessParser(cfg.readyMarker, nil),
		stdoutPipeline: parser.NewPipeline(logging.StreamStdout, cfg.bufferSize, 0),
		stderrPipeline: parser.NewPipeline(logging.StreamStderr, cfg.bufferSize, 0),
		done:           make(chan struct{}),
	}

	// Layer 1: readers never block on the listener. The readiness tap sees
	// every stdout line, including ones the pipeline drops.
	stdoutSource := parser.NewPipeReader(stdout, c.stdoutPipeline).WithTap(c.readiness)
	stderrSource := parser.NewPipeReader(stderr, c.stderrPipeline)
	go stdoutSource.Run()
	go stderrSource.Run()

	// Layer 2: parsers turn lines into events at the listener's pace.
	var producers sync.WaitGroup
	producers.Add(3)
	go func() {
		defer producers.Done()
		c.stdoutPipeline.RunParser(parser.LineParserFunc(func(line string) {
			c.emit(Event{Kind: EventStdout, Line: line})
		}))
	}()
	go func() {
		defer producers.Done()
		c.stderrPipeline.RunParser(parser.LineParserFunc(func(line string) {
			c.emit(Event{Kind: EventStderr, Line: line})
		}))
	}()
	go func() {
		defer producers.Done()
		select {
		case <-c.readiness.Ready():
			c.emit(Event{Kind: EventReady, Line: c.readiness.Line()})
		case <-stdoutSource.Done():
			// The tap runs before the pipeline closes, so a marker seen on
			// the last line is already visible here.
			if c.readiness.IsReady() {
				c.emit(Event{Kind: EventReady, Line: c.readiness.Line()})
			}
		}
	}()

	go c.wait(stdoutSource, stderrSource, &producers)

	return c, nil
}

// wait reaps the child once both pipes hit EOF, reports how it ended,
// and closes the event channel.
func (c *Child) wait(stdout, stderr parser.LineSource, producers *sync.WaitGroup) {
	<-stdout.Done()
	<-stderr.Done()
	producers.Wait()

	for _, src := range []struct {
		stream string
		source parser.LineSource
	}{
		{logging.StreamStdout, stdout},
		{logging.StreamStderr, stderr},
	} {
		if err := src.source.Err(); err != nil {
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("read %s: %w", src.stream, err)})
		}
	}

	// Wait must follow the pipe reads.
	waitErr := c.cmd.Wait()
	close(c.done)

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("wait: %w", waitErr)})
	}

	code, signal := exitStatus(c.cmd.ProcessState)
	c.emit(Event{Kind: EventTerminated, ExitCode: code, Signal: signal})
	close(c.events)
}

// emit stamps ev with the child's identity and queues it for the listener.
func (c *Child) emit(ev Event) {
	ev.RunID = c.runID
	ev.PID = c.pid
	ev.Time = time.Now()
	c.events <- ev
}

// terminate sends the termination signal to the child's process group.
func (c *Child) terminate() error {
	return process.Terminate(c.cmd.Process)
}

// reap waits up to timeout for the child to be reaped.
func (c *Child) reap(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-c.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return true
	case <-timer.C:
		return false
	}
}

// PID returns the process id.
func (c *Child) PID() int {
	return c.pid
}

// RunID returns the id assigned to this spawn.
func (c *Child) RunID() string {
	return c.runID
}

// StartedAt returns when the child was spawned.
func (c *Child) StartedAt() time.Time {
	return c.started
}

// exitStatus converts a finished process state into an exit code and
// signal name. Signal exits use 128+signal.
func exitStatus(ps *os.ProcessState) (code int, signal string) {
	if ps == nil {
		return -1, ""
	}
	if status, ok := ps.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), status.Signal().String()
	}
	return ps.ExitCode(), ""
}
