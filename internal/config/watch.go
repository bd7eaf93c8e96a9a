package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events editors emit for one save.
var watchDebounce = 200 * time.Millisecond

// Watch calls onChange with every valid version of the config file at path
// that differs from baseline, until ctx is done. baseline is the content the
// caller last applied, so an edit made before the watch starts is still
// seen on the next event. The containing directory is watched because
// editors often replace the file instead of writing it in place. Invalid
// versions are logged and skipped.
func Watch(ctx context.Context, path string, baseline []byte, onChange func(Config)) error {
	return watch(ctx, path, baseline, onChange, nil)
}

func watch(ctx context.Context, path string, baseline []byte, onChange func(Config), ready chan<- struct{}) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	target = filepath.Clean(target)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config dir %s: %w", dir, err)
	}
	lastRaw := baseline
	slog.Debug("[DEBUG-CONFIG] watching config", "path", target)
	if ready != nil {
		close(ready)
	}

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)

		case <-timer.C:
			raw, err := readLimitedFile(target, maxConfigFileBytes)
			if err != nil {
				slog.Warn("[WARN-CONFIG] failed to read changed config", "path", target, "error", err)
				continue
			}
			if bytes.Equal(raw, lastRaw) {
				continue
			}
			lastRaw = raw
			cfg, err := Parse(raw)
			if err != nil {
				slog.Warn("[WARN-CONFIG] ignoring invalid config change", "path", target, "error", err)
				continue
			}
			slog.Info("[DEBUG-CONFIG] config changed", "path", target, "bindings", len(cfg.Bindings))
			onChange(cfg)
		}
	}
}
