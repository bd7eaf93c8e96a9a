//go:build !windows

package procutil

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
	"testing"
)

func TestDetachSetsProcessGroup(t *testing.T) {
	cmd := exec.Command("true")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: false, Noctty: true}
	detach(cmd)
	if !cmd.SysProcAttr.Setpgid {
		t.Error("Setpgid is false, want true")
	}
	if !cmd.SysProcAttr.Noctty {
		t.Error("existing SysProcAttr field was dropped")
	}
}

func TestNewCommandRuns(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping")
	}
	cmd, err := NewCommand(context.Background(), []string{"sh", "-c", "echo hotkey"})
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if strings.TrimSpace(string(out)) != "hotkey" {
		t.Fatalf("output = %q", out)
	}
}
