// Package procutil builds the child processes started by command bindings.
package procutil

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// killGrace is how long a canceled command may keep its pipes open after
// being killed.
const killGrace = 2 * time.Second

// ErrEmptyCommand is returned for an empty argv.
var ErrEmptyCommand = errors.New("command is empty")

// NewCommand returns a Cmd for argv bound to ctx. The child runs detached
// from the daemon's console: no window on Windows, its own process group
// elsewhere.
func NewCommand(ctx context.Context, argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrEmptyCommand
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = killGrace
	detach(cmd)
	return cmd, nil
}
