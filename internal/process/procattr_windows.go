//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// SetProcGroup starts the child in a new process group.
func SetProcGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// Terminate kills p.
func Terminate(p *os.Process) error {
	return p.Kill()
}
