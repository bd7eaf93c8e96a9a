package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotkeyd/internal/config"
	"hotkeyd/internal/hotkeys"
	"hotkeyd/internal/ipc"
	"hotkeyd/internal/ocr"
)

// fakeBackend accepts every key and records native calls. Like the OS, it
// refuses a combination another live id already holds.
type fakeBackend struct {
	mu           sync.Mutex
	filter       hotkeys.EventFilter
	active       map[int]bool
	combos       map[int]fakeCombo
	registered   []int
	unregistered []int
	failRegister map[int]error
}

type fakeCombo struct {
	key  hotkeys.NativeKey
	mods hotkeys.NativeModifiers
}

type fakeHandle struct{ id int }

func (h fakeHandle) Matches(ev hotkeys.NativeEvent) bool {
	return ev.Kind == hotkeys.EventHotkey && ev.ID == h.id
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		active:       make(map[int]bool),
		combos:       make(map[int]fakeCombo),
		failRegister: make(map[int]error),
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) TranslateKey(key hotkeys.Key) (hotkeys.NativeKey, error) {
	return hotkeys.NativeKey(key), nil
}

func (b *fakeBackend) TranslateModifiers(mods hotkeys.Modifiers) hotkeys.NativeModifiers {
	return hotkeys.NativeModifiers(mods)
}

func (b *fakeBackend) Register(id int, key hotkeys.NativeKey, mods hotkeys.NativeModifiers) (hotkeys.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failRegister[id]; err != nil {
		return nil, err
	}
	combo := fakeCombo{key: key, mods: mods}
	for other, held := range b.combos {
		if other != id && held == combo {
			return nil, fmt.Errorf("id %d: %w by id %d", id, errFakeTaken, other)
		}
	}
	b.active[id] = true
	b.combos[id] = combo
	b.registered = append(b.registered, id)
	return fakeHandle{id: id}, nil
}

func (b *fakeBackend) Unregister(h hotkeys.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := h.(fakeHandle).id
	delete(b.active, id)
	delete(b.combos, id)
	b.unregistered = append(b.unregistered, id)
	return nil
}

func (b *fakeBackend) Install(filter hotkeys.EventFilter) error {
	b.mu.Lock()
	b.filter = filter
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) Remove() error {
	b.mu.Lock()
	b.filter = nil
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) failOn(id int, err error) {
	b.mu.Lock()
	b.failRegister[id] = err
	b.mu.Unlock()
}

// press delivers a hot-key event for id like the native event loop would.
func (b *fakeBackend) press(id int) bool {
	b.mu.Lock()
	filter := b.filter
	b.mu.Unlock()
	if filter == nil {
		return false
	}
	return filter.FilterNativeEvent(hotkeys.NativeEvent{Kind: hotkeys.EventHotkey, ID: id})
}

func (b *fakeBackend) isActive(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[id]
}

func (b *fakeBackend) registerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registered)
}

func (b *fakeBackend) unregisterCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unregistered)
}

// fakeEngine returns text for every image.
type fakeEngine struct {
	text  string
	err   error
	calls atomic.Int32
}

func (e *fakeEngine) Type() string { return "Fake" }

func (e *fakeEngine) Recognize(context.Context, image.Image) (string, error) {
	e.calls.Add(1)
	return e.text, e.err
}

func (e *fakeEngine) Close() error { return nil }

type testApp struct {
	*App
	backend *fakeBackend
	engine  *fakeEngine
	dir     string
}

var controlSeq atomic.Int32

// shortTempDir keeps socket paths under the sun_path limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "hkd")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func testConfig(dir string) config.Config {
	cfg := config.DefaultConfig()
	cfg.Bindings = []config.BindingConfig{
		{ID: 1, Name: "hello", Combo: "Ctrl+Alt+H", Action: config.ActionNotify},
		{ID: 2, Name: "shot", Combo: "Ctrl+Shift+O", Action: config.ActionOCR, Image: filepath.Join(dir, "shot.png")},
	}
	cfg.Stream.Enabled = false
	cfg.Watch = false
	cfg.OCR.CacheTTL = 0
	cfg.Log.Level = "debug"
	cfg.Log.File = filepath.Join(dir, "hotkeyd.log")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Control.Name = fmt.Sprintf("hkd-test-%d-%d", os.Getpid(), controlSeq.Add(1))
	return cfg
}

// newTestApp writes a config built by testConfig and mutate, then starts
// the daemon on fakes. The daemon is shut down in t.Cleanup.
func newTestApp(t *testing.T, mutate func(*config.Config)) *testApp {
	t.Helper()
	dir := shortTempDir(t)
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv(ipc.EnvEndpoint, "")

	cfg := testConfig(dir)
	if mutate != nil {
		mutate(&cfg)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("config.Save() error = %v", err)
	}

	ta := &testApp{
		App:     NewApp(path, false),
		backend: newFakeBackend(),
		engine:  &fakeEngine{text: "recognized text"},
		dir:     dir,
	}
	ta.newBackendFn = func(string) (hotkeys.Backend, error) { return ta.backend, nil }
	ta.newEngineFn = func([]string) ocr.Engine { return ta.engine }

	if err := ta.startup(context.Background()); err != nil {
		t.Fatalf("startup() error = %v", err)
	}
	t.Cleanup(func() {
		if err := ta.shutdown(); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	})
	return ta
}

func waitFor(t *testing.T, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !fn() {
		t.Fatalf("timed out waiting for %s", what)
	}
}

var errFakeTaken = errors.New("combination already taken")
