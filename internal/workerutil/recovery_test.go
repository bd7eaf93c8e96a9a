package workerutil

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotkeyd/internal/testutil"
)

func fastOpts(maxRetries int) RecoveryOptions {
	return RecoveryOptions{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		MaxRetries:     maxRetries,
	}
}

func TestRunWithPanicRecoveryOutcomes(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name           string
		fn             func(call int32) error
		restartOnError bool
		maxRetries     int
		wantCalls      int32
		wantFailures   int32
		wantFatal      bool
	}{
		{
			name:      "clean exit runs once",
			fn:        func(int32) error { return nil },
			wantCalls: 1,
		},
		{
			name: "panic then success",
			fn: func(call int32) error {
				if call == 1 {
					panic("first run")
				}
				return nil
			},
			maxRetries:   5,
			wantCalls:    2,
			wantFailures: 1,
		},
		{
			name:         "panics exhaust retries",
			fn:           func(int32) error { panic("always") },
			maxRetries:   3,
			wantCalls:    3,
			wantFailures: 3,
			wantFatal:    true,
		},
		{
			name:      "error without restart stops",
			fn:        func(int32) error { return errBoom },
			wantCalls: 1,
		},
		{
			name: "error with restart retries",
			fn: func(call int32) error {
				if call < 3 {
					return errBoom
				}
				return nil
			},
			restartOnError: true,
			maxRetries:     5,
			wantCalls:      3,
			wantFailures:   2,
		},
		{
			name:         "max retries of one runs once",
			fn:           func(int32) error { panic("once") },
			maxRetries:   1,
			wantCalls:    1,
			wantFailures: 1,
			wantFatal:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				wg       sync.WaitGroup
				calls    atomic.Int32
				failures atomic.Int32
				fatal    atomic.Bool
			)
			opts := fastOpts(tt.maxRetries)
			opts.RestartOnError = tt.restartOnError
			opts.OnFailure = func(_ string, attempt int, _ error) {
				if int32(attempt) != failures.Add(1) {
					t.Errorf("OnFailure attempt = %d out of order", attempt)
				}
			}
			opts.OnFatal = func(string, error) { fatal.Store(true) }

			RunWithPanicRecovery(context.Background(), tt.name, &wg, func(context.Context) error {
				return tt.fn(calls.Add(1))
			}, opts)
			wg.Wait()

			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if got := failures.Load(); got != tt.wantFailures {
				t.Errorf("failures = %d, want %d", got, tt.wantFailures)
			}
			if fatal.Load() != tt.wantFatal {
				t.Errorf("fatal = %v, want %v", fatal.Load(), tt.wantFatal)
			}
		})
	}
}

func TestRunWithPanicRecoveryPanicError(t *testing.T) {
	var wg sync.WaitGroup
	var got error
	opts := fastOpts(1)
	opts.OnFatal = func(_ string, err error) { got = err }

	RunWithPanicRecovery(context.Background(), "journal-pruner", &wg, func(context.Context) error {
		panic("nil map")
	}, opts)
	wg.Wait()

	var panicErr *PanicError
	if !errors.As(got, &panicErr) {
		t.Fatalf("OnFatal error = %v, want *PanicError", got)
	}
	if panicErr.Worker != "journal-pruner" || panicErr.Value != "nil map" || len(panicErr.Stack) == 0 {
		t.Fatalf("PanicError = %+v", panicErr)
	}
	if !strings.Contains(panicErr.Error(), "journal-pruner panicked: nil map") {
		t.Fatalf("Error() = %q", panicErr.Error())
	}
}

func TestRunWithPanicRecoveryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var failures atomic.Int32
	opts := RecoveryOptions{InitialBackoff: time.Hour, MaxBackoff: time.Hour, MaxRetries: 3}
	opts.OnFailure = func(string, int, error) { failures.Add(1) }

	started := make(chan struct{})
	RunWithPanicRecovery(ctx, "watcher", &wg, func(context.Context) error {
		close(started)
		panic("before backoff")
	}, opts)
	<-started

	// The worker is now parked in an hour-long backoff.
	if !waitFor(func() bool { return failures.Load() == 1 }) {
		t.Fatal("OnFailure not called")
	}
	cancel()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not interrupt the backoff")
	}
}

func TestRunWithPanicRecoveryShutdownStopsRestart(t *testing.T) {
	var wg sync.WaitGroup
	var calls atomic.Int32
	opts := fastOpts(5)
	opts.IsShutdown = func() bool { return true }

	RunWithPanicRecovery(context.Background(), "stream", &wg, func(context.Context) error {
		calls.Add(1)
		panic("during teardown")
	}, opts)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestApplyDefaults(t *testing.T) {
	got := RecoveryOptions{}.applyDefaults()
	if got.InitialBackoff != defaultInitialBackoff || got.MaxBackoff != defaultMaxBackoff || got.MaxRetries != defaultMaxRetries {
		t.Fatalf("applyDefaults() = %+v", got)
	}

	logs := testutil.CaptureLogBuffer(t, slog.LevelDebug)
	swapped := RecoveryOptions{InitialBackoff: time.Second, MaxBackoff: time.Millisecond}.applyDefaults()
	if swapped.MaxBackoff != time.Second {
		t.Fatalf("MaxBackoff = %v, want promoted to InitialBackoff", swapped.MaxBackoff)
	}
	if !strings.Contains(logs.String(), "MaxBackoff < InitialBackoff") {
		t.Fatalf("missing warning, logs = %q", logs.String())
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{current: 0, max: time.Second, want: defaultInitialBackoff},
		{current: 100 * time.Millisecond, max: time.Second, want: 200 * time.Millisecond},
		{current: 600 * time.Millisecond, max: time.Second, want: time.Second},
		{current: time.Second, max: time.Second, want: time.Second},
		{current: time.Duration(1 << 62), max: time.Duration(1<<63 - 1), want: time.Duration(1<<63 - 1)},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.current, tt.max); got != tt.want {
			t.Errorf("nextBackoff(%v, %v) = %v, want %v", tt.current, tt.max, got, tt.want)
		}
	}
}

func TestRecoverCallback(t *testing.T) {
	logs := testutil.CaptureLogBuffer(t, slog.LevelDebug)
	func() {
		defer RecoverCallback("observer")
		panic("observer bug")
	}()
	if !strings.Contains(logs.String(), "observer bug") || !strings.Contains(logs.String(), "where=observer") {
		t.Fatalf("logs = %q", logs.String())
	}

	func() {
		defer RecoverCallback("quiet")
	}()
}

func waitFor(fn func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fn()
}
