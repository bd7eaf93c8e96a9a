package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hotkeyd/internal/config"
	"hotkeyd/internal/journal"
	"hotkeyd/internal/logging"
	"hotkeyd/internal/wsserver"
)

func recent(t *testing.T, j *journal.Journal, n int) []journal.Activation {
	t.Helper()
	entries, err := j.Recent(context.Background(), n)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	return entries
}

func journalCount(t *testing.T, j *journal.Journal) int64 {
	t.Helper()
	n, err := j.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return n
}

func TestActivationIsJournaled(t *testing.T) {
	ta := newTestApp(t, nil)

	if !ta.backend.press(1) {
		t.Fatal("press(1) not consumed")
	}
	if ta.backend.press(99) {
		t.Fatal("press(99) consumed for an unknown id")
	}
	waitFor(t, "journal entry", func() bool { return journalCount(t, ta.journal) == 1 })

	e := recent(t, ta.journal, 1)[0]
	if e.BindingID != 1 || e.Name != "hello" || e.Combo != "Ctrl+Alt+H" || e.Action != config.ActionNotify || e.Error != "" {
		t.Fatalf("entry = %+v", e)
	}
	if e.EventID == "" || time.Since(e.ActivatedAt) > time.Minute {
		t.Fatalf("entry id/time = %q %v", e.EventID, e.ActivatedAt)
	}
}

func TestOCRActivation(t *testing.T) {
	ta := newTestApp(t, nil)

	// The image does not exist yet: the failure is journaled.
	ta.backend.press(2)
	waitFor(t, "failed ocr entry", func() bool { return journalCount(t, ta.journal) == 1 })
	if e := recent(t, ta.journal, 1)[0]; !strings.Contains(e.Error, "open image") {
		t.Fatalf("entry error = %q", e.Error)
	}

	writePNG(t, filepath.Join(ta.dir, "shot.png"))
	ta.backend.press(2)
	waitFor(t, "ocr entry", func() bool { return journalCount(t, ta.journal) == 2 })
	if e := recent(t, ta.journal, 1)[0]; e.Error != "" || e.Action != config.ActionOCR {
		t.Fatalf("entry = %+v", e)
	}
	if ta.engine.calls.Load() != 1 {
		t.Fatalf("engine calls = %d, want 1", ta.engine.calls.Load())
	}
}

func TestCommandAction(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable() error = %v", err)
	}
	ta := newTestApp(t, func(c *config.Config) {
		c.Bindings = []config.BindingConfig{
			{ID: 1, Combo: "F1", Action: config.ActionCommand, Command: []string{exe, "-test.run=^$"}},
			{ID: 2, Combo: "F2", Action: config.ActionCommand, Command: []string{filepath.Join(c.Log.File, "..", "missing-binary")}},
		}
	})

	result, err := ta.runAction(context.Background(), ta.liveBindings()[0])
	if err != nil {
		t.Fatalf("runAction(ok) error = %v", err)
	}
	if !strings.Contains(result, "PASS") {
		t.Fatalf("runAction(ok) result = %q", result)
	}

	if _, err := ta.runAction(context.Background(), ta.liveBindings()[1]); err == nil {
		t.Fatal("runAction(missing) error = nil")
	}
}

func TestRunActionUnknown(t *testing.T) {
	a := NewApp("unused.yaml", false)
	if _, err := a.runAction(context.Background(), config.BindingConfig{ID: 1, Action: "launch"}); err == nil {
		t.Fatal("runAction(unknown) error = nil")
	}
}

func TestOnActivatedDropsWhenSaturated(t *testing.T) {
	a := NewApp("unused.yaml", false)
	a.remember(config.BindingConfig{ID: 1, Combo: "F1", Action: config.ActionNotify})

	for range activationQueueSize + 3 {
		a.onActivated(1)
	}
	if got := a.dropped.Load(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
	if got := len(a.activations); got != activationQueueSize {
		t.Fatalf("queued = %d, want %d", got, activationQueueSize)
	}

	a.onActivated(42)
	if got := a.dropped.Load(); got != 3 {
		t.Fatalf("unknown id counted as dropped: %d", got)
	}
}

func TestOnLogEntryNeverBlocks(t *testing.T) {
	a := NewApp("unused.yaml", false)
	entry := logging.Entry{Time: time.Now(), Level: slog.LevelWarn, Message: "disk full"}
	for range logEventQueueSize + 5 {
		a.onLogEntry(entry)
	}
	if got := a.droppedLogs.Load(); got != 5 {
		t.Fatalf("droppedLogs = %d, want 5", got)
	}
	ev := <-a.logEvents
	if ev.Level != "WARN" || ev.Message != "disk full" {
		t.Fatalf("log event = %+v", ev)
	}
}

func TestTruncateOutput(t *testing.T) {
	if got := truncateOutput([]byte("  done\n")); got != "done" {
		t.Fatalf("truncateOutput(short) = %q", got)
	}
	long := strings.Repeat("x", maxCommandOutput+10)
	if got := truncateOutput([]byte(long)); len(got) != maxCommandOutput+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncateOutput(long) len = %d", len(got))
	}
}

func TestActivationStream(t *testing.T) {
	ta := newTestApp(t, func(c *config.Config) {
		c.Stream.Enabled = true
		c.Stream.Addr = "127.0.0.1:0"
	})
	url := ta.streamURL()
	if url == "" {
		t.Fatal("stream not started")
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return ta.hub.ClientCount() == 1 })

	ta.backend.press(1)
	var activated wsserver.ActivatedEvent
	readUntil(t, conn, wsserver.TopicActivated, &activated)
	if activated.BindingID != 1 || activated.Name != "hello" || activated.EventID == "" {
		t.Fatalf("activated = %+v", activated)
	}
	entry := recent(t, ta.journal, 1)
	if len(entry) != 1 || entry[0].EventID != activated.EventID {
		t.Fatalf("journal event id = %+v, stream event id = %q", entry, activated.EventID)
	}

	slog.Warn("[DEBUG-TEST] streamed warning", "k", "v")
	var logged wsserver.LogEvent
	for !strings.Contains(logged.Message, "streamed warning") {
		readUntil(t, conn, wsserver.TopicLog, &logged)
	}
	if logged.Level != "WARN" || logged.Attrs["k"] != "v" {
		t.Fatalf("log event = %+v", logged)
	}
}

// readUntil reads frames until one of type typ arrives and decodes it.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() waiting for %s: %v", typ, err)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			t.Fatalf("frame %q: %v", data, err)
		}
		if head.Type != typ {
			continue
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s: %v", typ, err)
		}
		return
	}
}
