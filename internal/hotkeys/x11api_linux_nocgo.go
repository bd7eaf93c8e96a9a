//go:build linux && !cgo

package hotkeys

import "fmt"

// xlibUnavailable stands in for Xlib in binaries built with CGO_ENABLED=0.
type xlibUnavailable struct{}

func newPlatformBackend() Backend {
	return NewX11Backend(xlibUnavailable{})
}

func (xlibUnavailable) Open() error {
	return fmt.Errorf("%w: built without cgo, Xlib unavailable", ErrNoDisplay)
}

func (xlibUnavailable) Attach(EventFilter) error { return nil }

func (xlibUnavailable) Detach() error { return nil }

func (xlibUnavailable) GrabKey(NativeKey, NativeModifiers) error { return ErrNotInitialized }

func (xlibUnavailable) UngrabKey(NativeKey, NativeModifiers) error { return nil }
