package supervisor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed control operation. The set is closed.
type ErrorKind int

const (
	// KindUnavailable means the state slot cannot be used: the supervisor
	// was closed, or an earlier control call panicked while holding it.
	KindUnavailable ErrorKind = iota + 1

	// KindDataDirResolve means the per-instance data directory could not
	// be determined.
	KindDataDirResolve

	// KindDataDirCreate means the data directory could not be created.
	KindDataDirCreate

	// KindDataDirPath means the data directory path cannot be handed to
	// the child as text.
	KindDataDirPath

	// KindCommand means the child command could not be located or built.
	KindCommand

	// KindSpawn means the OS refused to start the child.
	KindSpawn

	// KindSignal means the termination signal could not be delivered.
	KindSignal
)

// String returns a stable name for the kind, used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindDataDirResolve:
		return "data_dir_resolve"
	case KindDataDirCreate:
		return "data_dir_create"
	case KindDataDirPath:
		return "data_dir_path"
	case KindCommand:
		return "command"
	case KindSpawn:
		return "spawn"
	case KindSignal:
		return "signal"
	default:
		return "unknown"
	}
}

var (
	errClosed   = errors.New("supervisor closed")
	errPoisoned = errors.New("sidecar state lost after a panic")
)

// Error is returned by every failing control operation.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error renders the message shown to users.
func (e *Error) Error() string {
	switch e.Kind {
	case KindUnavailable:
		return fmt.Sprintf("sidecar state unavailable: %v", e.Err)
	case KindDataDirResolve:
		return fmt.Sprintf("failed to get app data dir: %v", e.Err)
	case KindDataDirCreate:
		return fmt.Sprintf("failed to create app data dir: %v", e.Err)
	case KindDataDirPath:
		return "invalid app data dir path"
	case KindCommand:
		return fmt.Sprintf("failed to get sidecar command: %v", e.Err)
	case KindSpawn:
		return fmt.Sprintf("failed to spawn sidecar: %v", e.Err)
	case KindSignal:
		return fmt.Sprintf("failed to kill sidecar: %v", e.Err)
	default:
		return fmt.Sprintf("sidecar error: %v", e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
