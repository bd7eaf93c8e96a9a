//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
	"testing"
)

func TestDetachHidesWindow(t *testing.T) {
	cmd := exec.Command("cmd.exe", "/c", "echo", "test")
	detach(cmd)

	if cmd.SysProcAttr == nil {
		t.Fatal("SysProcAttr is nil after detach()")
	}
	if !cmd.SysProcAttr.HideWindow {
		t.Error("HideWindow is false, want true")
	}
	if cmd.SysProcAttr.CreationFlags&syscall.CREATE_NEW_PROCESS_GROUP == 0 {
		t.Error("CREATE_NEW_PROCESS_GROUP not set")
	}
}

func TestDetachPreservesExistingSysProcAttr(t *testing.T) {
	const createNoWindow = 0x08000000
	cmd := exec.Command("cmd.exe", "/c", "echo", "test")
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}

	detach(cmd)

	if cmd.SysProcAttr.CreationFlags&createNoWindow == 0 {
		t.Errorf("CreationFlags = %#x, existing flag dropped", cmd.SysProcAttr.CreationFlags)
	}
}
