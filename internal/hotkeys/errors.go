package hotkeys

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedKey is returned when a key falls outside the letter, digit
	// and function-key ranges the platform backend can translate.
	ErrUnsupportedKey = errors.New("unsupported key")
	// ErrNativeRegistration is returned when the OS refuses a hot key, for
	// example because another process already owns the combination.
	ErrNativeRegistration = errors.New("native hotkey registration failed")
	// ErrNoDisplay is returned when the windowing system connection is unavailable.
	ErrNoDisplay = errors.New("no display connection available")
	// ErrNotInitialized is returned when the native event hook is not running.
	ErrNotInitialized = errors.New("hotkey backend not initialized")
	// ErrNotSupported is returned on platforms without a hotkey implementation.
	ErrNotSupported = errors.New("global hotkeys are not supported on this platform")
	// ErrRegistryClosed is returned by Register after Close.
	ErrRegistryClosed = errors.New("hotkey registry closed")
)

// NativeError carries the OS-level status of a failed native call.
// It matches ErrNativeRegistration with errors.Is.
type NativeError struct {
	Op   string
	Code int64
	Err  error
}

func (e *NativeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed (code %d)", e.Op, e.Code)
	}
	return fmt.Sprintf("%s failed (code %d): %v", e.Op, e.Code, e.Err)
}

func (e *NativeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNativeRegistration}
	}
	return []error{ErrNativeRegistration, e.Err}
}
