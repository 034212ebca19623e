package supervisor

import (
	"time"
)

// EventKind identifies what the child did.
type EventKind int

const (
	// EventStdout carries one line of standard output.
	EventStdout EventKind = iota + 1

	// EventStderr carries one line of standard error.
	EventStderr

	// EventError reports a failure reading from or waiting on the child.
	EventError

	// EventTerminated reports that the child exited. Always the last event.
	EventTerminated

	// EventReady reports that the readiness marker appeared on stdout.
	EventReady
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventError:
		return "error"
	case EventTerminated:
		return "terminated"
	case EventReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Event is one observation about a child process.
type Event struct {
	Kind  EventKind
	RunID string
	PID   int
	Time  time.Time

	// Line is set for EventStdout, EventStderr and EventReady.
	Line string

	// Err is set for EventError.
	Err error

	// ExitCode and Signal are set for EventTerminated. A child killed by
	// a signal reports 128+signal as its exit code, -1 when unknown.
	ExitCode int
	Signal   string
}
