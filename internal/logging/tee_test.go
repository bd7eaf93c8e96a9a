package logging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestCallback() (EntryCallback, func() []Entry) {
	var mu sync.Mutex
	var entries []Entry
	cb := func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		entries = append(entries, e)
	}
	get := func() []Entry {
		mu.Lock()
		defer mu.Unlock()
		return append([]Entry(nil), entries...)
	}
	return cb, get
}

func TestTeeHandlerThreshold(t *testing.T) {
	tests := []struct {
		name     string
		logFunc  func(l *slog.Logger)
		wantTee  bool
		wantLvl  slog.Level
		wantBase string
	}{
		{name: "error teed", logFunc: func(l *slog.Logger) { l.Error("disk gone") }, wantTee: true, wantLvl: slog.LevelError, wantBase: "disk gone"},
		{name: "warn teed", logFunc: func(l *slog.Logger) { l.Warn("slow hook") }, wantTee: true, wantLvl: slog.LevelWarn, wantBase: "slow hook"},
		{name: "info not teed", logFunc: func(l *slog.Logger) { l.Info("registered") }, wantBase: "registered"},
		{name: "debug not teed", logFunc: func(l *slog.Logger) { l.Debug("details") }, wantBase: "details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
			cb, get := newTestCallback()
			tt.logFunc(slog.New(NewTeeHandler(base, slog.LevelWarn, cb)))

			if !strings.Contains(buf.String(), tt.wantBase) {
				t.Fatalf("base output %q missing %q", buf.String(), tt.wantBase)
			}
			entries := get()
			if !tt.wantTee {
				if len(entries) != 0 {
					t.Fatalf("unexpected tee entries: %+v", entries)
				}
				return
			}
			if len(entries) != 1 || entries[0].Level != tt.wantLvl || entries[0].Message != tt.wantBase {
				t.Fatalf("entries = %+v", entries)
			}
		})
	}
}

func TestTeeHandlerCarriesAttrsAndGroups(t *testing.T) {
	base := slog.NewTextHandler(io.Discard, nil)
	cb, get := newTestCallback()
	logger := slog.New(NewTeeHandler(base, slog.LevelWarn, cb)).
		With("component", "hotkeys").
		WithGroup("a").
		WithGroup("b")

	logger.Warn("grab failed", "id", 7)

	entries := get()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Group != "a.b" {
		t.Errorf("Group = %q, want a.b", e.Group)
	}
	if e.Attrs["component"] != "hotkeys" || e.Attrs["id"] != "7" {
		t.Errorf("Attrs = %v", e.Attrs)
	}
}

func TestTeeHandlerNilCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTeeHandler(slog.NewTextHandler(&buf, nil), slog.LevelWarn, nil))
	logger.Error("should not panic")
	if !strings.Contains(buf.String(), "should not panic") {
		t.Fatalf("base output %q", buf.String())
	}
}

func TestTeeHandlerEmptyGroupReturnsReceiver(t *testing.T) {
	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup(\"\") should return the receiver")
	}
	if h.WithAttrs(nil) != slog.Handler(h) {
		t.Fatal("WithAttrs(nil) should return the receiver")
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestTeeHandlerBaseErrorStillTees(t *testing.T) {
	cb, get := newTestCallback()
	h := NewTeeHandler(failingHandler{slog.NewTextHandler(io.Discard, nil)}, slog.LevelWarn, cb)
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "boom", 0))
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("Handle() error = %v, want base error", err)
	}
	if len(get()) != 1 {
		t.Fatal("callback skipped after base failure")
	}
}

func TestTeeHandlerCallbackPanicWritesToStderr(t *testing.T) {
	origStderr := os.Stderr
	readPipe, writePipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	os.Stderr = writePipe
	t.Cleanup(func() {
		os.Stderr = origStderr
		_ = readPipe.Close()
		_ = writePipe.Close()
	})

	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelInfo, func(Entry) {
		panic("stderr panic test")
	})
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	_ = writePipe.Close()

	out, _ := io.ReadAll(readPipe)
	if !strings.Contains(string(out), "[logging] tee callback panicked: stderr panic test") {
		t.Fatalf("stderr = %q", out)
	}
}
