//go:build !windows && !darwin && !linux

package hotkeys

import "log/slog"

func newPlatformBackend() Backend {
	slog.Warn("[DEBUG-HOTKEY] global hotkeys are not supported on this platform; registrations will fail")
	return NewUnsupportedBackend()
}
