package hotkeys

import (
	"fmt"
	"runtime"
	"strings"
)

// NativeKey is a platform key identifier (virtual-key code, Carbon key code
// or X11 keysym).
type NativeKey uint32

// NativeModifiers is a platform modifier mask.
type NativeModifiers uint32

// EventKind classifies a raw event observed by the native hook.
type EventKind int

const (
	// EventOther is any event that is not a hot-key notification.
	EventOther EventKind = iota
	// EventHotkey carries the registration id (WM_HOTKEY, Carbon hot-key pressed).
	EventHotkey
	// EventKeyPress carries only key and modifier state (X11 KeyPress).
	EventKeyPress
)

// NativeEvent is the platform-neutral view of one raw input event.
type NativeEvent struct {
	Kind  EventKind
	ID    int
	Key   NativeKey
	State NativeModifiers
}

// EventFilter observes native events before the rest of the event pipeline.
// FilterNativeEvent returns true when the event was consumed.
type EventFilter interface {
	FilterNativeEvent(ev NativeEvent) bool
}

// EventFilterFunc adapts a function to EventFilter.
type EventFilterFunc func(ev NativeEvent) bool

func (f EventFilterFunc) FilterNativeEvent(ev NativeEvent) bool { return f(ev) }

// Handle is the opaque token returned by a successful native registration.
type Handle interface {
	// Matches reports whether ev was produced by this registration.
	Matches(ev NativeEvent) bool
}

// Backend translates abstract bindings into native registrations and feeds
// native events back through an installed EventFilter.
type Backend interface {
	Name() string
	TranslateKey(key Key) (NativeKey, error)
	TranslateModifiers(mods Modifiers) NativeModifiers
	Register(id int, key NativeKey, mods NativeModifiers) (Handle, error)
	Unregister(h Handle) error
	Install(filter EventFilter) error
	Remove() error
}

// Backend names accepted by NewBackend.
const (
	BackendAuto   = "auto"
	BackendWin32  = "win32"
	BackendCarbon = "carbon"
	BackendX11    = "x11"
	BackendNone   = "none"
)

// NewBackend returns the backend selected by name. "auto" (or "") picks the
// native backend for the running OS. Asking for a backend whose native
// primitives are not compiled into this binary returns ErrNotSupported.
func NewBackend(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", BackendAuto:
		return newPlatformBackend(), nil
	case BackendNone:
		return NewUnsupportedBackend(), nil
	case BackendWin32, BackendCarbon, BackendX11:
		b := newPlatformBackend()
		if b.Name() != name {
			return nil, fmt.Errorf("backend %q on %s: %w", name, runtime.GOOS, ErrNotSupported)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown hotkey backend %q", name)
	}
}

// unsupportedBackend is used where no native implementation exists.
type unsupportedBackend struct{}

// NewUnsupportedBackend returns a backend that rejects every registration
// with ErrNotSupported.
func NewUnsupportedBackend() Backend { return unsupportedBackend{} }

func (unsupportedBackend) Name() string { return BackendNone }

func (unsupportedBackend) TranslateKey(Key) (NativeKey, error) { return 0, ErrNotSupported }

func (unsupportedBackend) TranslateModifiers(Modifiers) NativeModifiers { return 0 }

func (unsupportedBackend) Register(int, NativeKey, NativeModifiers) (Handle, error) {
	return nil, ErrNotSupported
}

func (unsupportedBackend) Unregister(Handle) error { return nil }

func (unsupportedBackend) Install(EventFilter) error { return nil }

func (unsupportedBackend) Remove() error { return nil }
