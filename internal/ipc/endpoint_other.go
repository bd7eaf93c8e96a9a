//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hotkeyd/internal/userutil"
)

const socketName = "hotkeyd.sock"

// runtimeDir returns $XDG_RUNTIME_DIR, or a per-user directory under the
// temp dir when it is unset.
func runtimeDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" && filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(os.TempDir(), "hotkeyd-"+userutil.CurrentUsername())
}

func defaultEndpoint() string {
	return filepath.Join(runtimeDir(), socketName)
}

func endpointForName(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	name = userutil.SanitizeUsername(name)
	if !strings.HasSuffix(name, ".sock") {
		name += ".sock"
	}
	return filepath.Join(runtimeDir(), name)
}

func validEndpoint(value string) bool {
	return filepath.IsAbs(value) && strings.HasSuffix(value, ".sock") && filepath.Clean(value) == value
}

func dialEndpoint(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}

// listenEndpoint creates the socket with owner-only permissions. A stale
// socket file left by a crashed daemon is replaced; a live one is an error.
func listenEndpoint(endpoint string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(endpoint), 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if _, err := os.Lstat(endpoint); err == nil {
		if conn, dialErr := net.DialTimeout("unix", endpoint, 500*time.Millisecond); dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("socket %s is in use", endpoint)
		}
		slog.Debug("[ipc] removing stale socket", "endpoint", endpoint)
		if err := os.Remove(endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return listener, nil
}

func cleanupEndpoint(endpoint string) {
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("[ipc] failed to remove socket", "endpoint", endpoint, "error", err)
	}
}
