package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hotkeyd/internal/config"
	"hotkeyd/internal/hotkeys"
	"hotkeyd/internal/ipc"
	"hotkeyd/internal/journal"
	"hotkeyd/internal/ocr"
	"hotkeyd/internal/workerutil"
	"hotkeyd/internal/wsserver"
)

const shutdownWaitTimeout = 10 * time.Second

// journalPruneInterval is how often entries past retention are deleted.
const journalPruneInterval = time.Hour

// startup loads the config and brings up every service. Only a failure to
// set up logging or the hotkey registry is fatal; the optional services
// degrade to a warning.
func (a *App) startup(parent context.Context) error {
	cfg, rawCfg, cfgErr := config.EnsureFile(a.configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}
	cfg.ResolvePaths(a.configPath)

	logOut, err := a.setupLogFn(cfg.Log, a.forceDebug, a.onLogEntry)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.logOut = logOut
	if cfgErr != nil {
		slog.Warn("[DEBUG-CONFIG] failed to load config, running with defaults",
			"path", a.configPath, "error", cfgErr)
	}
	a.setConfigSnapshot(cfg)

	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	backend, err := a.newBackendFn(cfg.Backend)
	if err != nil {
		slog.Warn("[DEBUG-HOTKEY] hotkey backend unavailable, registrations will fail",
			"backend", cfg.Backend, "error", err)
		backend = hotkeys.NewUnsupportedBackend()
	}
	registry, err := hotkeys.NewRegistry(backend)
	if err != nil {
		cancel()
		return fmt.Errorf("create hotkey registry: %w", err)
	}
	a.registry = registry
	a.cancelObserver = registry.OnActivated(a.onActivated)

	a.ocr = ocr.NewWithEngine(a.newEngineFn(cfg.OCR.Languages), ocr.Options{
		Languages: cfg.OCR.Languages,
		CacheTTL:  cfg.OCR.CacheTTL,
	})

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			slog.Warn("[DEBUG-JOURNAL] journal disabled", "path", cfg.Journal.Path, "error", err)
		} else {
			a.journal = j
		}
	}

	if cfg.Stream.Enabled {
		hub := wsserver.NewHub(wsserver.HubOptions{Addr: cfg.Stream.Addr})
		if err := hub.Start(ctx); err != nil {
			slog.Warn("[DEBUG-WS] event stream disabled", "addr", cfg.Stream.Addr, "error", err)
		} else {
			a.hub = hub
		}
	}

	a.control = ipc.NewServer(ipc.ResolveEndpoint(cfg.Control.Name), a)
	if err := a.control.Start(); err != nil {
		slog.Warn("[ipc] control channel unavailable", "error", err)
		a.control = nil
	}

	if err := a.applyBindings(cfg.Bindings); err != nil {
		slog.Warn("[DEBUG-HOTKEY] some bindings could not be registered", "error", err)
	}

	a.startWorkers(ctx, cfg, rawCfg)
	slog.Info("[DEBUG-APP] hotkeyd started",
		"config", a.configPath,
		"backend", registry.BackendName(),
		"ocr", a.ocr.BackendType(),
		"bindings", len(a.registry.Bindings()),
		"stream", a.streamURL(),
	)
	return nil
}

// startWorkers launches the background loops. rawCfg is the config file
// content startup applied; the watcher compares against it.
func (a *App) startWorkers(ctx context.Context, cfg config.Config, rawCfg []byte) {
	opts := workerutil.RecoveryOptions{IsShutdown: a.shuttingDown.Load}

	workerutil.RunWithPanicRecovery(ctx, "action-worker", &a.bgWG, a.runActionWorker, opts)

	if a.hub != nil {
		workerutil.RunWithPanicRecovery(ctx, "log-stream", &a.bgWG, a.runLogStream, opts)
	}
	if a.journal != nil && cfg.Journal.Retention > 0 {
		retention := cfg.Journal.Retention
		workerutil.RunWithPanicRecovery(ctx, "journal-pruner", &a.bgWG, func(ctx context.Context) error {
			return a.runJournalPruner(ctx, retention)
		}, opts)
	}
	if cfg.Watch {
		watchOpts := opts
		watchOpts.RestartOnError = true
		workerutil.RunWithPanicRecovery(ctx, "config-watcher", &a.bgWG, func(ctx context.Context) error {
			return config.Watch(ctx, a.configPath, rawCfg, a.applyConfig)
		}, watchOpts)
	}
}

// runJournalPruner deletes journal entries older than retention, once at
// start and then every journalPruneInterval.
func (a *App) runJournalPruner(ctx context.Context, retention time.Duration) error {
	prune := func() {
		if _, err := a.journal.Prune(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
			slog.Warn("[DEBUG-JOURNAL] prune failed", "error", err)
		}
	}
	prune()

	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}

// shutdown stops the services in reverse order. Idempotent.
func (a *App) shutdown() error {
	if !a.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error

	if a.control != nil {
		if err := a.control.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop control channel: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		slog.Warn("[DEBUG-APP] timed out waiting for background workers during shutdown")
	}

	if a.cancelObserver != nil {
		a.cancelObserver()
	}
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close hotkey registry: %w", err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if a.ocr != nil {
		if err := a.ocr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ocr: %w", err))
		}
	}
	if dropped := a.dropped.Load(); dropped > 0 {
		slog.Warn("[DEBUG-APP] activations dropped while the action worker was busy", "count", dropped)
	}
	slog.Info("[DEBUG-APP] hotkeyd stopped")

	if a.logOut != nil {
		if err := a.logOut.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) streamURL() string {
	if a.hub == nil {
		return ""
	}
	return a.hub.URL()
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// The waiting goroutine may outlive timeout when waitFn blocks forever;
	// only used on the way out of the process.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
