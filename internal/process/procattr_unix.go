//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// SetProcGroup puts the child in its own process group so Terminate
// reaches anything it spawns.
func SetProcGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate kills the process group led by p, falling back to p alone
// when there is no such group. Returns os.ErrProcessDone when p has
// already exited and been reaped.
func Terminate(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.ESRCH) && !errors.Is(err, syscall.EPERM) {
		return err
	}
	return p.Kill()
}
