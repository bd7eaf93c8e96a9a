// Package workerutil supervises the daemon's long-running goroutines.
package workerutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRetries     = 10
)

// PanicError is the error a worker attempt ends with when it panics.
type PanicError struct {
	Worker string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %s panicked: %v", e.Worker, e.Value)
}

// RecoveryOptions configures RunWithPanicRecovery. Zero values use the
// defaults (100ms initial backoff, 5s cap, 10 attempts).
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxRetries is the total number of attempts, the first run included.
	// 1 runs the worker once.
	MaxRetries int

	// RestartOnError also restarts a worker that returns a non-nil error.
	// Without it an error ends the worker after being logged.
	RestartOnError bool

	// OnFailure runs after each failed attempt (1-based), before the backoff.
	OnFailure func(worker string, attempt int, err error)

	// OnFatal runs once when attempts are exhausted.
	OnFatal func(worker string, err error)

	// IsShutdown stops restarts while the daemon tears down.
	IsShutdown func() bool
}

func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[DEBUG-WORKER] MaxBackoff < InitialBackoff, using InitialBackoff as MaxBackoff",
			"initialBackoff", opts.InitialBackoff,
			"maxBackoff", opts.MaxBackoff,
		)
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery starts fn on a goroutine tracked by wg and restarts
// it with exponential backoff after a panic (and, with RestartOnError, after
// an error). A nil return or a canceled ctx ends supervision.
func RunWithPanicRecovery(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	fn func(ctx context.Context) error,
	opts RecoveryOptions,
) {
	opts = opts.applyDefaults()
	wg.Go(func() {
		supervise(ctx, name, fn, opts)
	})
}

func supervise(ctx context.Context, name string, fn func(ctx context.Context) error, opts RecoveryOptions) {
	delay := opts.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		lastErr = runOnce(ctx, name, fn)
		if lastErr == nil || ctx.Err() != nil {
			return
		}

		var panicErr *PanicError
		if !errors.As(lastErr, &panicErr) && !opts.RestartOnError {
			slog.Error("[DEBUG-WORKER] worker stopped with error", "worker", name, "error", lastErr)
			return
		}
		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[DEBUG-WORKER] shutdown in progress, not restarting", "worker", name)
			return
		}

		if opts.OnFailure != nil {
			opts.OnFailure(name, attempt, lastErr)
		}
		if attempt == opts.MaxRetries {
			break
		}

		slog.Warn("[DEBUG-WORKER] restarting worker",
			"worker", name,
			"error", lastErr,
			"restartDelay", delay,
			"attempt", attempt,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = nextBackoff(delay, opts.MaxBackoff)
	}

	slog.Error("[DEBUG-WORKER] worker exceeded max retries, giving up",
		"worker", name,
		"maxRetries", opts.MaxRetries,
		"error", lastErr,
	)
	if opts.OnFatal != nil {
		opts.OnFatal(name, lastErr)
	}
}

// runOnce runs fn and converts a panic into a *PanicError.
func runOnce(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			slog.Error("[DEBUG-PANIC] worker recovered from panic",
				"worker", name,
				"panic", r,
				"stack", string(stack),
			)
			err = &PanicError{Worker: name, Value: r, Stack: stack}
		}
	}()
	return fn(ctx)
}

// RecoverCallback is deferred in callbacks that run on goroutines the
// daemon does not own, such as native event threads. It logs and swallows
// the panic.
func RecoverCallback(where string) {
	if r := recover(); r != nil {
		slog.Error("[DEBUG-PANIC] callback recovered from panic",
			"where", where,
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}
}

// nextBackoff doubles current up to maxBackoff, guarding against overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
