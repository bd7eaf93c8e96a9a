package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hotkeyd/internal/config"
	"hotkeyd/internal/ipc"
	"hotkeyd/internal/singleinstance"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the config file")
	debug := flag.Bool("debug", false, "force debug logging")
	flag.Parse()

	setConsoleUTF8()
	os.Exit(runOnMainThread(func() int { return run(*configPath, *debug) }))
}

func run(configPath string, debug bool) int {
	lock, err := singleinstance.TryLock(singleinstance.DefaultName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[DEBUG-SINGLE] another instance is already running, asking it to reload")
		if err := signalRunningInstance(configPath); err != nil {
			slog.Warn("[DEBUG-SINGLE] failed to signal existing instance", "error", err)
			return 1
		}
		return 0
	}
	if err != nil {
		slog.Warn("[DEBUG-SINGLE] lock failed, proceeding without single-instance guard", "error", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] lock release failed", "error", releaseErr)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(configPath, debug)
	if err := app.startup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hotkeyd: %v\n", err)
		_ = app.shutdown()
		return 1
	}
	<-ctx.Done()
	slog.Info("[DEBUG-APP] signal received, shutting down")
	if err := app.shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "hotkeyd: shutdown: %v\n", err)
		return 1
	}
	return 0
}

// signalRunningInstance asks the daemon that holds the lock to reload its
// config through the control channel.
func signalRunningInstance(configPath string) error {
	name := ""
	if cfg, err := config.Load(configPath); err == nil {
		name = cfg.Control.Name
	}
	resp, err := ipc.Send(ipc.ResolveEndpoint(name), ipc.Request{Command: "reload"})
	if err != nil {
		return err
	}
	if resp.ExitCode != 0 {
		return fmt.Errorf("reload: %s", resp.Stderr)
	}
	return nil
}
