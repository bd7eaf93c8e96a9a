package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Registry owns the table of registered bindings and demultiplexes native
// hot-key events back to binding ids.
//
// Lock ordering (never acquire in reverse):
//
//	opMu -> mu
//
// opMu serializes Register/Unregister and is held across native calls.
// mu guards the binding table and observers; FilterNativeEvent only takes mu
// and releases it before notifying, so the native event thread never waits
// on a registration round-trip.
type Registry struct {
	backend Backend

	opMu   sync.Mutex
	closed bool

	mu        sync.Mutex
	bindings  map[int]*Binding
	observers []observer
	nextObsID uint64
}

type observer struct {
	id uint64
	fn func(id int)
}

// NewRegistry creates a registry and installs it as the backend's event hook.
func NewRegistry(backend Backend) (*Registry, error) {
	if backend == nil {
		return nil, errors.New("hotkey backend is required")
	}
	r := &Registry{
		backend:  backend,
		bindings: make(map[int]*Binding),
	}
	if err := backend.Install(r); err != nil {
		return nil, fmt.Errorf("install %s event hook: %w", backend.Name(), err)
	}
	slog.Debug("[DEBUG-HOTKEY] event hook installed", "backend", backend.Name())
	return r, nil
}

// BackendName returns the name of the native backend.
func (r *Registry) BackendName() string { return r.backend.Name() }

// Register binds id to key+mods. An existing binding for id is released
// first. On failure nothing is stored and the returned error wraps one of
// ErrUnsupportedKey, ErrNativeRegistration, ErrNoDisplay, ErrNotInitialized
// or ErrNotSupported.
func (r *Registry) Register(id int, key Key, mods Modifiers) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	combo := Combo{Key: key, Modifiers: mods}
	if !mods.Valid() {
		return fmt.Errorf("register hotkey %d: invalid modifier flags 0x%X", id, uint32(mods))
	}

	r.unregisterLocked(id)

	nativeKey, err := r.backend.TranslateKey(key)
	if err != nil {
		slog.Debug("[DEBUG-HOTKEY] key translation failed", "id", id, "combo", combo.String(), "error", err)
		return fmt.Errorf("register hotkey %d (%s): %w", id, combo, err)
	}
	nativeMods := r.backend.TranslateModifiers(mods)

	handle, err := r.backend.Register(id, nativeKey, nativeMods)
	if err != nil {
		slog.Warn("[DEBUG-HOTKEY] native registration failed",
			"id", id, "combo", combo.String(), "backend", r.backend.Name(), "error", err)
		return fmt.Errorf("register hotkey %d (%s): %w", id, combo, err)
	}

	r.mu.Lock()
	r.bindings[id] = &Binding{
		ID:         id,
		Key:        key,
		Modifiers:  mods,
		nativeKey:  nativeKey,
		nativeMods: nativeMods,
		handle:     handle,
	}
	r.mu.Unlock()

	slog.Info("[DEBUG-HOTKEY] registered hotkey",
		"id", id, "combo", combo.String(), "nativeKey", nativeKey, "nativeMods", nativeMods)
	return nil
}

// Unregister releases the binding for id. Unknown ids are ignored.
func (r *Registry) Unregister(id int) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.unregisterLocked(id)
}

// UnregisterAll releases every tracked binding.
func (r *Registry) UnregisterAll() {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.unregisterAllLocked()
}

func (r *Registry) unregisterAllLocked() {
	r.mu.Lock()
	ids := make([]int, 0, len(r.bindings))
	for id := range r.bindings {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		r.unregisterLocked(id)
	}
}

// unregisterLocked requires opMu. The native handle is released before the
// entry leaves the table.
func (r *Registry) unregisterLocked(id int) {
	r.mu.Lock()
	b, ok := r.bindings[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := r.backend.Unregister(b.handle); err != nil {
		slog.Warn("[DEBUG-HOTKEY] native unregistration failed (binding dropped anyway)",
			"id", id, "combo", b.Combo().String(), "error", err)
	}

	r.mu.Lock()
	delete(r.bindings, id)
	r.mu.Unlock()
	slog.Debug("[DEBUG-HOTKEY] unregistered hotkey", "id", id)
}

// Lookup returns the binding for id.
func (r *Registry) Lookup(id int) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	if !ok {
		return Binding{}, false
	}
	return b.public(), true
}

// Bindings returns a snapshot of all bindings sorted by id.
func (r *Registry) Bindings() []Binding {
	r.mu.Lock()
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b.public())
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Binding) int { return a.ID - b.ID })
	return out
}

// OnActivated adds an observer invoked synchronously, on the native event
// thread, for every activation. Observers must not block. The returned
// function removes the observer.
func (r *Registry) OnActivated(fn func(id int)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextObsID++
	obsID := r.nextObsID
	r.observers = append(r.observers, observer{id: obsID, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.observers = slices.DeleteFunc(r.observers, func(o observer) bool { return o.id == obsID })
	}
}

// FilterNativeEvent implements EventFilter. It emits activated(id) for
// events that belong to a tracked binding and reports them as consumed.
func (r *Registry) FilterNativeEvent(ev NativeEvent) bool {
	r.mu.Lock()
	id, ok := r.matchLocked(ev)
	var observers []observer
	if ok {
		observers = slices.Clone(r.observers)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	for _, o := range observers {
		o.fn(id)
	}
	return true
}

func (r *Registry) matchLocked(ev NativeEvent) (int, bool) {
	switch ev.Kind {
	case EventHotkey:
		if _, ok := r.bindings[ev.ID]; ok {
			return ev.ID, true
		}
	case EventKeyPress:
		ids := make([]int, 0, len(r.bindings))
		for id := range r.bindings {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			if b := r.bindings[id]; b.handle != nil && b.handle.Matches(ev) {
				return id, true
			}
		}
	}
	return 0, false
}

// Close unregisters every binding and removes the event hook. Further
// Register calls fail with ErrRegistryClosed. Close is idempotent.
func (r *Registry) Close() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.unregisterAllLocked()
	if err := r.backend.Remove(); err != nil {
		return fmt.Errorf("remove %s event hook: %w", r.backend.Name(), err)
	}
	slog.Debug("[DEBUG-HOTKEY] event hook removed", "backend", r.backend.Name())
	return nil
}
