//go:build !windows

package procutil

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own process group so terminal signals aimed
// at the daemon do not reach it. Existing SysProcAttr fields are preserved.
func detach(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
