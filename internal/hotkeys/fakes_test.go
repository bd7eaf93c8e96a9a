package hotkeys

import (
	"errors"
	"fmt"
	"sync"
)

// fakeBackend is an always-accepting native layer with call counting.
type fakeBackend struct {
	mu sync.Mutex

	failRegister map[int]error
	installErr   error

	registerCalls   []fakeRegisterCall
	unregisterCalls []int
	active          map[int]*fakeHandle
	installCalls    int
	removeCalls     int
	filter          EventFilter
}

type fakeRegisterCall struct {
	id   int
	key  NativeKey
	mods NativeModifiers
}

type fakeHandle struct {
	id       int
	key      NativeKey
	mods     NativeModifiers
	released bool
}

func (h *fakeHandle) Matches(ev NativeEvent) bool {
	switch ev.Kind {
	case EventHotkey:
		return ev.ID == h.id
	case EventKeyPress:
		return ev.Key == h.key && ev.State == h.mods
	}
	return false
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		failRegister: make(map[int]error),
		active:       make(map[int]*fakeHandle),
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) TranslateKey(key Key) (NativeKey, error) {
	switch {
	case key.IsLetter(), key.IsDigit():
		return NativeKey(key), nil
	case key.FunctionNumber() >= 1 && key.FunctionNumber() <= 24:
		return NativeKey(0x70 + key.FunctionNumber() - 1), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedKey, key)
}

func (b *fakeBackend) TranslateModifiers(mods Modifiers) NativeModifiers {
	return NativeModifiers(mods >> 25)
}

func (b *fakeBackend) Register(id int, key NativeKey, mods NativeModifiers) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerCalls = append(b.registerCalls, fakeRegisterCall{id: id, key: key, mods: mods})
	if err := b.failRegister[id]; err != nil {
		return nil, err
	}
	if _, dup := b.active[id]; dup {
		return nil, errors.New("fake: id registered twice without release")
	}
	h := &fakeHandle{id: id, key: key, mods: mods}
	b.active[id] = h
	return h, nil
}

func (b *fakeBackend) Unregister(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fh := h.(*fakeHandle)
	if fh.released {
		return errors.New("fake: handle released twice")
	}
	fh.released = true
	b.unregisterCalls = append(b.unregisterCalls, fh.id)
	delete(b.active, fh.id)
	return nil
}

func (b *fakeBackend) Install(filter EventFilter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.installCalls++
	if b.installErr != nil {
		return b.installErr
	}
	b.filter = filter
	return nil
}

func (b *fakeBackend) Remove() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeCalls++
	b.filter = nil
	return nil
}

// fire delivers ev through the installed hook like the native event loop would.
func (b *fakeBackend) fire(ev NativeEvent) bool {
	b.mu.Lock()
	filter := b.filter
	b.mu.Unlock()
	if filter == nil {
		return false
	}
	return filter.FilterNativeEvent(ev)
}

func (b *fakeBackend) activeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// fakeWin32API records user32 calls.
type fakeWin32API struct {
	startCalls int
	stopCalls  int
	filter     EventFilter
	registered []fakeRegisterCall
	released   []int
	failWith   error
}

func (a *fakeWin32API) Start(filter EventFilter) error {
	a.startCalls++
	a.filter = filter
	return nil
}

func (a *fakeWin32API) Stop() error {
	a.stopCalls++
	a.filter = nil
	return nil
}

func (a *fakeWin32API) RegisterHotKey(id int, mods NativeModifiers, vk NativeKey) error {
	a.registered = append(a.registered, fakeRegisterCall{id: id, key: vk, mods: mods})
	return a.failWith
}

func (a *fakeWin32API) UnregisterHotKey(id int) error {
	a.released = append(a.released, id)
	return nil
}

// fakeCarbonAPI records Carbon Event Manager calls.
type fakeCarbonAPI struct {
	installCalls int
	removeCalls  int
	installErr   error
	dispatch     func(uint32) bool
	registered   []fakeRegisterCall
	released     []uint32
	nextRef      int
}

type fakeCarbonRef struct {
	n  int
	id uint32
}

func (a *fakeCarbonAPI) InstallHandler(dispatch func(uint32) bool) error {
	a.installCalls++
	if a.installErr != nil {
		return a.installErr
	}
	a.dispatch = dispatch
	return nil
}

func (a *fakeCarbonAPI) RemoveHandler() error {
	a.removeCalls++
	a.dispatch = nil
	return nil
}

func (a *fakeCarbonAPI) RegisterEventHotKey(keycode NativeKey, mods NativeModifiers, id uint32) (any, error) {
	a.registered = append(a.registered, fakeRegisterCall{id: int(id), key: keycode, mods: mods})
	a.nextRef++
	return &fakeCarbonRef{n: a.nextRef, id: id}, nil
}

func (a *fakeCarbonAPI) UnregisterEventHotKey(ref any) error {
	a.released = append(a.released, ref.(*fakeCarbonRef).id)
	return nil
}

// fakeX11API records grab calls.
type fakeX11API struct {
	openErr     error
	failGrabAt  int // 1-based grab call index to fail, 0 = never
	grabs       []x11GrabCall
	ungrabs     []x11GrabCall
	attachCalls int
	detachCalls int
	filter      EventFilter
}

type x11GrabCall struct {
	keysym NativeKey
	mask   NativeModifiers
}

func (a *fakeX11API) Open() error { return a.openErr }

func (a *fakeX11API) Attach(filter EventFilter) error {
	a.attachCalls++
	a.filter = filter
	return nil
}

func (a *fakeX11API) Detach() error {
	a.detachCalls++
	a.filter = nil
	return nil
}

func (a *fakeX11API) GrabKey(keysym NativeKey, mask NativeModifiers) error {
	a.grabs = append(a.grabs, x11GrabCall{keysym: keysym, mask: mask})
	if a.failGrabAt == len(a.grabs) {
		return &NativeError{Op: "XGrabKey", Code: 10, Err: errors.New("BadAccess")}
	}
	return nil
}

func (a *fakeX11API) UngrabKey(keysym NativeKey, mask NativeModifiers) error {
	a.ungrabs = append(a.ungrabs, x11GrabCall{keysym: keysym, mask: mask})
	return nil
}
