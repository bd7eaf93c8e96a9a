//go:build darwin

package hotkeys

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"
)

// carbonProcessHook is the one application-wide hot-key handler of this
// process. Carbon delivers every kEventHotKeyPressed to the application
// event target, so routing from hot-key id to the owning backend is shared
// state by nature: one native hook per process, not per registry.
var carbonProcessHook = &carbonHook{
	routes: make(map[uint32]*carbonEventAPI),
}

type carbonHook struct {
	mu     sync.Mutex
	routes map[uint32]*carbonEventAPI
}

// dispatch hands one press to the backend owning id, on the caller's
// goroutine.
func (h *carbonHook) dispatch(id uint32) {
	h.mu.Lock()
	owner := h.routes[id]
	h.mu.Unlock()
	if owner == nil {
		slog.Debug("[DEBUG-HOTKEY] carbon hot key without owner ignored", "id", id)
		return
	}
	owner.deliver(id)
}

// carbonEventAPI implements CarbonAPI on top of golang.design/x/hotkey, which
// wraps RegisterEventHotKey. Callers must run under mainthread.Init.
type carbonEventAPI struct {
	mu       sync.Mutex
	dispatch func(hotkeyID uint32) bool
}

type carbonRef struct {
	id   uint32
	hk   *hotkey.Hotkey
	stop chan struct{}
}

func newCarbonAPI() CarbonAPI {
	return &carbonEventAPI{}
}

func newPlatformBackend() Backend {
	return NewCarbonBackend(newCarbonAPI())
}

func (a *carbonEventAPI) InstallHandler(dispatch func(hotkeyID uint32) bool) error {
	a.mu.Lock()
	a.dispatch = dispatch
	a.mu.Unlock()
	return nil
}

func (a *carbonEventAPI) RemoveHandler() error {
	a.mu.Lock()
	a.dispatch = nil
	a.mu.Unlock()

	carbonProcessHook.mu.Lock()
	defer carbonProcessHook.mu.Unlock()
	for id, owner := range carbonProcessHook.routes {
		if owner == a {
			delete(carbonProcessHook.routes, id)
		}
	}
	return nil
}

func (a *carbonEventAPI) RegisterEventHotKey(keycode NativeKey, mods NativeModifiers, hotkeyID uint32) (any, error) {
	carbonProcessHook.mu.Lock()
	if owner, taken := carbonProcessHook.routes[hotkeyID]; taken && owner != a {
		carbonProcessHook.mu.Unlock()
		return nil, &NativeError{Op: "RegisterEventHotKey", Err: fmt.Errorf("hot key id %d already registered in this process", hotkeyID)}
	}
	carbonProcessHook.mu.Unlock()

	var hkMods []hotkey.Modifier
	if mods != 0 {
		hkMods = []hotkey.Modifier{hotkey.Modifier(mods)}
	}
	hk := hotkey.New(hkMods, hotkey.Key(keycode))
	if err := hk.Register(); err != nil {
		return nil, &NativeError{Op: "RegisterEventHotKey", Err: err}
	}

	ref := &carbonRef{id: hotkeyID, hk: hk, stop: make(chan struct{})}
	carbonProcessHook.mu.Lock()
	carbonProcessHook.routes[hotkeyID] = a
	carbonProcessHook.mu.Unlock()

	go forwardCarbonKeydown(ref.id, ref.hk.Keydown(), ref.stop)
	return ref, nil
}

func (a *carbonEventAPI) UnregisterEventHotKey(ref any) error {
	cr, ok := ref.(*carbonRef)
	if !ok {
		return fmt.Errorf("carbon: unexpected hot key ref %T", ref)
	}
	close(cr.stop)

	carbonProcessHook.mu.Lock()
	if carbonProcessHook.routes[cr.id] == a {
		delete(carbonProcessHook.routes, cr.id)
	}
	carbonProcessHook.mu.Unlock()

	if err := cr.hk.Unregister(); err != nil {
		return &NativeError{Op: "UnregisterEventHotKey", Err: err}
	}
	return nil
}

func (a *carbonEventAPI) deliver(id uint32) {
	a.mu.Lock()
	dispatch := a.dispatch
	a.mu.Unlock()
	if dispatch == nil {
		return
	}
	if !dispatch(id) {
		slog.Debug("[DEBUG-HOTKEY] carbon hot key not handled (eventNotHandledErr)", "id", id)
	}
}

// forwardCarbonKeydown delivers one hot key's presses. A press is not
// taken from keydown until the previous one has been dispatched.
func forwardCarbonKeydown(id uint32, keydown <-chan hotkey.Event, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case _, ok := <-keydown:
			if !ok {
				return
			}
			carbonProcessHook.dispatch(id)
		}
	}
}
