// Package logging installs the daemon's slog handler: text output to a
// rotating file and/or stderr, with warnings teed to a callback.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"hotkeyd/internal/config"
)

// Output is the installed logging pipeline.
type Output struct {
	level *slog.LevelVar
	file  *lumberjack.Logger
	prev  *slog.Logger
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
}

// Setup builds the handler described by cfg and installs it as
// slog.Default. forceDebug overrides cfg.Level. onWarn, when non-nil,
// receives every Warn+ record.
func Setup(cfg config.LogConfig, forceDebug bool, onWarn EntryCallback) (*Output, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if forceDebug {
		level = slog.LevelDebug
	}

	out := &Output{level: new(slog.LevelVar), prev: slog.Default()}
	out.level.Set(level)

	var writers []io.Writer
	if path := strings.TrimSpace(cfg.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		out.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writers = append(writers, out.file)
	}
	if cfg.ToStderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	base := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: out.level})
	slog.SetDefault(slog.New(NewTeeHandler(base, slog.LevelWarn, onWarn)))

	slog.Debug("[DEBUG-LOG] logger initialized",
		"level", level.String(),
		"file", cfg.File,
		"max_size_mb", cfg.MaxSizeMB,
		"max_backups", cfg.MaxBackups,
		"max_age_days", cfg.MaxAgeDays,
		"compress", cfg.Compress)
	return out, nil
}

// SetLevel changes the minimum level without rebuilding the handler.
func (o *Output) SetLevel(raw string) error {
	level, err := ParseLevel(raw)
	if err != nil {
		return err
	}
	o.level.Set(level)
	return nil
}

// Level returns the current minimum level.
func (o *Output) Level() slog.Level { return o.level.Level() }

// Rotate forces the log file to roll over.
func (o *Output) Rotate() error {
	if o.file == nil {
		return nil
	}
	return o.file.Rotate()
}

// Close restores the previous default logger and closes the log file.
func (o *Output) Close() error {
	slog.SetDefault(o.prev)
	if o.file == nil {
		return nil
	}
	if err := o.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}
