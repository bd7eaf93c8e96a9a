package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// X11 modifier masks (X.h).
const (
	x11ShiftMask   NativeModifiers = 1 << 0
	x11LockMask    NativeModifiers = 1 << 1
	x11ControlMask NativeModifiers = 1 << 2
	x11Mod1Mask    NativeModifiers = 1 << 3
	x11Mod2Mask    NativeModifiers = 1 << 4
	x11Mod4Mask    NativeModifiers = 1 << 6

	// x11IgnoredLocks are CapsLock (Lock) and NumLock (usually Mod2).
	x11IgnoredLocks = x11LockMask | x11Mod2Mask
)

// X11 keysyms (keysymdef.h).
const (
	x11KeysymA  NativeKey = 0x0061 // XK_a
	x11Keysym0  NativeKey = 0x0030 // XK_0
	x11KeysymF1 NativeKey = 0xFFBE // XK_F1

	x11MaxFunctionKey = 35
)

// X11API is the set of Xlib primitives the X11 backend relies on. Grabs are
// made on the root window; key presses are reported to the attached filter
// as EventKeyPress with the grabbed keysym and modifier state.
type X11API interface {
	// Open connects to the display, returning ErrNoDisplay when none exists.
	Open() error
	Attach(filter EventFilter) error
	Detach() error
	GrabKey(keysym NativeKey, mask NativeModifiers) error
	UngrabKey(keysym NativeKey, mask NativeModifiers) error
}

// X11Backend maps bindings onto XGrabKey. Passive grabs are sensitive to the
// CapsLock and NumLock state, so every binding is grabbed four times.
type X11Backend struct {
	api X11API

	mu       sync.Mutex
	attached bool
	openErr  error
}

// NewX11Backend returns an X11 backend over api.
func NewX11Backend(api X11API) *X11Backend {
	return &X11Backend{api: api}
}

func (b *X11Backend) Name() string { return BackendX11 }

func (b *X11Backend) TranslateKey(key Key) (NativeKey, error) {
	switch {
	case key.IsLetter():
		return x11KeysymA + NativeKey(key-KeyA), nil
	case key.IsDigit():
		return x11Keysym0 + NativeKey(key-Key0), nil
	case key.FunctionNumber() >= 1 && key.FunctionNumber() <= x11MaxFunctionKey:
		return x11KeysymF1 + NativeKey(key.FunctionNumber()-1), nil
	}
	return 0, fmt.Errorf("%w: %s on X11", ErrUnsupportedKey, key)
}

func (b *X11Backend) TranslateModifiers(mods Modifiers) NativeModifiers {
	var out NativeModifiers
	if mods.Has(ModShift) {
		out |= x11ShiftMask
	}
	if mods.Has(ModControl) {
		out |= x11ControlMask
	}
	if mods.Has(ModAlt) {
		out |= x11Mod1Mask
	}
	if mods.Has(ModMeta) {
		out |= x11Mod4Mask
	}
	return out
}

// lockVariants returns mask combined with every CapsLock/NumLock state.
func lockVariants(mask NativeModifiers) [4]NativeModifiers {
	return [4]NativeModifiers{
		mask,
		mask | x11Mod2Mask,
		mask | x11LockMask,
		mask | x11Mod2Mask | x11LockMask,
	}
}

// Register grabs keysym under all four lock variants. If any grab fails the
// ones already taken are released and nothing is returned.
func (b *X11Backend) Register(_ int, keysym NativeKey, mods NativeModifiers) (Handle, error) {
	b.mu.Lock()
	attached, openErr := b.attached, b.openErr
	b.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}
	if !attached {
		return nil, ErrNotInitialized
	}

	variants := lockVariants(mods)
	for i, mask := range variants {
		if err := b.api.GrabKey(keysym, mask); err != nil {
			for _, taken := range variants[:i] {
				if ungrabErr := b.api.UngrabKey(keysym, taken); ungrabErr != nil {
					slog.Warn("[DEBUG-HOTKEY] x11 rollback ungrab failed",
						"keysym", keysym, "mask", taken, "error", ungrabErr)
				}
			}
			return nil, err
		}
	}
	return x11Handle{keysym: keysym, mask: mods}, nil
}

// Unregister releases all four lock variants.
func (b *X11Backend) Unregister(h Handle) error {
	xh, ok := h.(x11Handle)
	if !ok {
		return fmt.Errorf("x11: foreign handle %T", h)
	}
	var errs []error
	for _, mask := range lockVariants(xh.mask) {
		if err := b.api.UngrabKey(xh.keysym, mask); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Install connects to the display and attaches filter. A missing display
// does not fail the install; every later Register reports ErrNoDisplay.
func (b *X11Backend) Install(filter EventFilter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return nil
	}
	if err := b.api.Open(); err != nil {
		if errors.Is(err, ErrNoDisplay) {
			slog.Warn("[DEBUG-HOTKEY] x11 display unavailable, registrations will fail", "error", err)
			b.openErr = err
			return nil
		}
		return err
	}
	b.openErr = nil
	if err := b.api.Attach(filter); err != nil {
		return err
	}
	b.attached = true
	return nil
}

func (b *X11Backend) Remove() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return nil
	}
	b.attached = false
	return b.api.Detach()
}

type x11Handle struct {
	keysym NativeKey
	mask   NativeModifiers
}

// Matches compares key and modifier state with CapsLock/NumLock ignored.
func (h x11Handle) Matches(ev NativeEvent) bool {
	return ev.Kind == EventKeyPress && ev.Key == h.keysym && ev.State&^x11IgnoredLocks == h.mask
}
