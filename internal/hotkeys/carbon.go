package hotkeys

import (
	"fmt"
	"sync"
)

// Carbon modifier masks (Events.h).
const (
	carbonCmdKey     NativeModifiers = 1 << 8
	carbonShiftKey   NativeModifiers = 1 << 9
	carbonOptionKey  NativeModifiers = 1 << 11
	carbonControlKey NativeModifiers = 1 << 12
)

// carbonMaxFunctionKey is the highest function key mapped on macOS.
const carbonMaxFunctionKey = 12

// Carbon virtual key codes follow the ANSI keyboard layout, not the
// alphabet, so they are looked up rather than computed.
var (
	carbonLetterCodes = [26]NativeKey{
		0x00, 0x0B, 0x08, 0x02, 0x0E, 0x03, 0x05, 0x04, 0x22, 0x26, 0x28, 0x25, 0x2E, // A-M
		0x2D, 0x1F, 0x23, 0x0C, 0x0F, 0x01, 0x11, 0x20, 0x09, 0x0D, 0x07, 0x10, 0x06, // N-Z
	}
	carbonDigitCodes = [10]NativeKey{
		0x1D, 0x12, 0x13, 0x14, 0x15, 0x17, 0x16, 0x1A, 0x1C, 0x19, // 0-9
	}
	carbonFunctionCodes = [carbonMaxFunctionKey]NativeKey{
		0x7A, 0x78, 0x63, 0x76, 0x60, 0x61, 0x62, 0x64, 0x65, 0x6D, 0x67, 0x6F, // F1-F12
	}
)

// CarbonAPI is the set of Carbon Event Manager primitives the Carbon backend
// relies on. InstallHandler installs the single application-wide hot-key
// handler; dispatch returns true when the event was handled (noErr).
type CarbonAPI interface {
	InstallHandler(dispatch func(hotkeyID uint32) bool) error
	RemoveHandler() error
	RegisterEventHotKey(keycode NativeKey, mods NativeModifiers, hotkeyID uint32) (ref any, err error)
	UnregisterEventHotKey(ref any) error
}

// CarbonBackend maps bindings onto RegisterEventHotKey. Control is mapped to
// Command and Meta to Control, matching macOS shortcut conventions.
type CarbonBackend struct {
	api CarbonAPI

	mu               sync.Mutex
	filter           EventFilter
	handlerInstalled bool
}

// NewCarbonBackend returns a Carbon backend over api.
func NewCarbonBackend(api CarbonAPI) *CarbonBackend {
	return &CarbonBackend{api: api}
}

func (b *CarbonBackend) Name() string { return BackendCarbon }

func (b *CarbonBackend) TranslateKey(key Key) (NativeKey, error) {
	switch {
	case key.IsLetter():
		return carbonLetterCodes[key-KeyA], nil
	case key.IsDigit():
		return carbonDigitCodes[key-Key0], nil
	case key.FunctionNumber() >= 1 && key.FunctionNumber() <= carbonMaxFunctionKey:
		return carbonFunctionCodes[key.FunctionNumber()-1], nil
	}
	return 0, fmt.Errorf("%w: %s on macOS", ErrUnsupportedKey, key)
}

func (b *CarbonBackend) TranslateModifiers(mods Modifiers) NativeModifiers {
	var out NativeModifiers
	if mods.Has(ModShift) {
		out |= carbonShiftKey
	}
	if mods.Has(ModControl) {
		out |= carbonCmdKey
	}
	if mods.Has(ModAlt) {
		out |= carbonOptionKey
	}
	if mods.Has(ModMeta) {
		out |= carbonControlKey
	}
	return out
}

// Register installs the shared application handler on first use, then
// registers the hot key with the binding id as its EventHotKeyID.
func (b *CarbonBackend) Register(id int, key NativeKey, mods NativeModifiers) (Handle, error) {
	if id < 0 {
		return nil, &NativeError{Op: "RegisterEventHotKey", Err: fmt.Errorf("hotkey id %d is negative", id)}
	}

	b.mu.Lock()
	if b.filter == nil {
		b.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if !b.handlerInstalled {
		if err := b.api.InstallHandler(b.dispatch); err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.handlerInstalled = true
	}
	b.mu.Unlock()

	ref, err := b.api.RegisterEventHotKey(key, mods, uint32(id))
	if err != nil {
		return nil, err
	}
	return &carbonHandle{id: id, ref: ref}, nil
}

func (b *CarbonBackend) Unregister(h Handle) error {
	ch, ok := h.(*carbonHandle)
	if !ok {
		return fmt.Errorf("carbon: foreign handle %T", h)
	}
	if ch.ref == nil {
		return nil
	}
	err := b.api.UnregisterEventHotKey(ch.ref)
	ch.ref = nil
	return err
}

// Install records the filter; the native handler itself is installed lazily
// by the first Register.
func (b *CarbonBackend) Install(filter EventFilter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = filter
	return nil
}

func (b *CarbonBackend) Remove() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = nil
	if !b.handlerInstalled {
		return nil
	}
	b.handlerInstalled = false
	return b.api.RemoveHandler()
}

func (b *CarbonBackend) dispatch(hotkeyID uint32) bool {
	b.mu.Lock()
	filter := b.filter
	b.mu.Unlock()
	if filter == nil {
		return false
	}
	return filter.FilterNativeEvent(NativeEvent{Kind: EventHotkey, ID: int(hotkeyID)})
}

type carbonHandle struct {
	id  int
	ref any
}

func (h *carbonHandle) Matches(ev NativeEvent) bool {
	return ev.Kind == EventHotkey && ev.ID == h.id
}
