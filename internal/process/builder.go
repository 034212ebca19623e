// Package process locates the sidecar binary and builds the command that
// runs it.
package process

import (
	"errors"
	"os/exec"
)

// ErrSidecarNotFound indicates the sidecar binary could not be located.
var ErrSidecarNotFound = errors.New("sidecar binary not found")

// Builder creates the child command for one start.
// This interface keeps the supervisor independent of how the binary is found.
type Builder interface {
	// BuildCommand returns a ready-to-start command using env.
	// The command must NOT be started yet.
	BuildCommand(env Env) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
