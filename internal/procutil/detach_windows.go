//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
)

// detach suppresses the console window flash and keeps Ctrl+C sent to the
// daemon away from the child. Existing SysProcAttr fields are preserved.
func detach(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}
