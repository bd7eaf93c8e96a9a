package hotkeys

import (
	"fmt"
	"sync"
)

// Win32 RegisterHotKey modifier flags (winuser.h).
const (
	win32ModAlt      NativeModifiers = 0x0001
	win32ModControl  NativeModifiers = 0x0002
	win32ModShift    NativeModifiers = 0x0004
	win32ModWin      NativeModifiers = 0x0008
	win32ModNoRepeat NativeModifiers = 0x4000
)

const (
	win32VKF1 NativeKey = 0x70

	// win32MaxFunctionKey is VK_F24.
	win32MaxFunctionKey = 24

	// win32MaxHotkeyID is the upper bound for application-defined hot-key ids.
	win32MaxHotkeyID = 0xBFFF
)

// Win32API is the set of user32 primitives the Win32 backend relies on.
// Implementations deliver WM_HOTKEY messages to the filter passed to Start,
// from the thread that owns the registrations.
type Win32API interface {
	Start(filter EventFilter) error
	Stop() error
	RegisterHotKey(id int, mods NativeModifiers, vk NativeKey) error
	UnregisterHotKey(id int) error
}

// Win32Backend maps bindings onto RegisterHotKey. Activations carry the
// registration id (WM_HOTKEY wParam).
type Win32Backend struct {
	api Win32API

	mu        sync.Mutex
	installed bool
}

// NewWin32Backend returns a Win32 backend over api.
func NewWin32Backend(api Win32API) *Win32Backend {
	return &Win32Backend{api: api}
}

func (b *Win32Backend) Name() string { return BackendWin32 }

// TranslateKey maps A-Z and 0-9 to their ASCII virtual keys and F1..F24 to
// VK_F1..VK_F24.
func (b *Win32Backend) TranslateKey(key Key) (NativeKey, error) {
	switch {
	case key.IsLetter():
		return NativeKey('A' + (key - KeyA)), nil
	case key.IsDigit():
		return NativeKey('0' + (key - Key0)), nil
	case key.FunctionNumber() >= 1 && key.FunctionNumber() <= win32MaxFunctionKey:
		return win32VKF1 + NativeKey(key.FunctionNumber()-1), nil
	}
	return 0, fmt.Errorf("%w: %s on win32", ErrUnsupportedKey, key)
}

func (b *Win32Backend) TranslateModifiers(mods Modifiers) NativeModifiers {
	var out NativeModifiers
	if mods.Has(ModShift) {
		out |= win32ModShift
	}
	if mods.Has(ModControl) {
		out |= win32ModControl
	}
	if mods.Has(ModAlt) {
		out |= win32ModAlt
	}
	if mods.Has(ModMeta) {
		out |= win32ModWin
	}
	return out
}

// Register calls RegisterHotKey with MOD_NOREPEAT so holding the combination
// produces a single activation.
func (b *Win32Backend) Register(id int, key NativeKey, mods NativeModifiers) (Handle, error) {
	if id < 0 || id > win32MaxHotkeyID {
		return nil, &NativeError{Op: "RegisterHotKey", Err: fmt.Errorf("hotkey id %d outside 0..0x%X", id, win32MaxHotkeyID)}
	}
	b.mu.Lock()
	installed := b.installed
	b.mu.Unlock()
	if !installed {
		return nil, ErrNotInitialized
	}
	if err := b.api.RegisterHotKey(id, mods|win32ModNoRepeat, key); err != nil {
		return nil, err
	}
	return win32Handle{id: id}, nil
}

func (b *Win32Backend) Unregister(h Handle) error {
	wh, ok := h.(win32Handle)
	if !ok {
		return fmt.Errorf("win32: foreign handle %T", h)
	}
	return b.api.UnregisterHotKey(wh.id)
}

// Install starts the message loop that delivers WM_HOTKEY to filter.
func (b *Win32Backend) Install(filter EventFilter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.installed {
		return nil
	}
	if err := b.api.Start(filter); err != nil {
		return err
	}
	b.installed = true
	return nil
}

func (b *Win32Backend) Remove() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.installed {
		return nil
	}
	b.installed = false
	return b.api.Stop()
}

type win32Handle struct {
	id int
}

func (h win32Handle) Matches(ev NativeEvent) bool {
	return ev.Kind == EventHotkey && ev.ID == h.id
}
