package main

import (
	"context"
	"sync"
	"sync/atomic"

	"hotkeyd/internal/config"
	"hotkeyd/internal/hotkeys"
	"hotkeyd/internal/ipc"
	"hotkeyd/internal/journal"
	"hotkeyd/internal/logging"
	"hotkeyd/internal/ocr"
	"hotkeyd/internal/wsserver"
)

const (
	// activationQueueSize bounds activations waiting for the action worker.
	// Observers never block, so a full queue drops the activation.
	activationQueueSize = 64
	// logEventQueueSize bounds warnings waiting to be streamed.
	logEventQueueSize = 256
)

// App is the hotkey daemon.
type App struct {
	configPath string
	forceDebug bool

	// Test seams, fixed before startup.
	newBackendFn func(name string) (hotkeys.Backend, error)
	newEngineFn  func(languages []string) ocr.Engine
	setupLogFn   func(cfg config.LogConfig, forceDebug bool, onWarn logging.EntryCallback) (*logging.Output, error)

	// Lock ordering (outer -> inner):
	//   applyMu -> bindMu
	//   applyMu -> cfgMu
	//
	// applyMu serializes every change to the live binding set (startup,
	// reload, watcher, control register/unregister). bindMu guards the
	// metadata read by the native observer and must never be held across a
	// registry call.
	applyMu sync.Mutex
	bindMu  sync.RWMutex
	active  map[int]config.BindingConfig

	cfgMu sync.RWMutex
	cfg   config.Config

	// Services. Set once during startup before any worker starts.
	registry       *hotkeys.Registry
	cancelObserver func()
	ocr            *ocr.Dispatcher
	journal        *journal.Journal
	hub            *wsserver.Hub
	control        *ipc.Server
	logOut         *logging.Output

	activations  chan activation
	logEvents    chan wsserver.LogEvent
	dropped      atomic.Uint64
	droppedLogs  atomic.Uint64
	shuttingDown atomic.Bool

	cancel context.CancelFunc
	bgWG   sync.WaitGroup
}

// NewApp creates the daemon for the config file at configPath.
func NewApp(configPath string, forceDebug bool) *App {
	return &App{
		configPath:   configPath,
		forceDebug:   forceDebug,
		newBackendFn: hotkeys.NewBackend,
		newEngineFn:  ocr.NewEngine,
		setupLogFn:   logging.Setup,
		active:       make(map[int]config.BindingConfig),
		activations:  make(chan activation, activationQueueSize),
		logEvents:    make(chan wsserver.LogEvent, logEventQueueSize),
	}
}

func (a *App) configSnapshot() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Clone(a.cfg)
}

func (a *App) setConfigSnapshot(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = config.Clone(cfg)
	a.cfgMu.Unlock()
}

// bindingMeta returns the config entry behind a live binding id.
func (a *App) bindingMeta(id int) (config.BindingConfig, bool) {
	a.bindMu.RLock()
	defer a.bindMu.RUnlock()
	b, ok := a.active[id]
	return b, ok
}
