package main

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hotkeyd/internal/config"
	"hotkeyd/internal/ipc"
	"hotkeyd/internal/journal"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
}

func TestExecuteCommands(t *testing.T) {
	ta := newTestApp(t, nil)
	imgPath := filepath.Join(ta.dir, "control.png")
	writePNG(t, imgPath)

	tests := []struct {
		name       string
		req        ipc.Request
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{name: "ping", req: ipc.Request{Command: "ping"}, wantStdout: "pong"},
		{name: "list", req: ipc.Request{Command: "list"}, wantStdout: "1\tCtrl+Alt+H\tnotify\thello\n2\tCtrl+Shift+O\tocr\tshot\n"},
		{name: "backend", req: ipc.Request{Command: "backend"}, wantStdout: "hotkeys=fake ocr=Fake"},
		{name: "unknown", req: ipc.Request{Command: "explode"}, wantCode: 1, wantStderr: "unknown command: explode"},
		{name: "register usage", req: ipc.Request{Command: "register", Args: []string{"3"}}, wantCode: 1, wantStderr: "usage: register"},
		{name: "register bad id", req: ipc.Request{Command: "register", Args: []string{"x", "F3"}}, wantCode: 1, wantStderr: "invalid id"},
		{name: "register bad combo", req: ipc.Request{Command: "register", Args: []string{"3", "Hyper+Q"}}, wantCode: 1, wantStderr: "unknown modifier"},
		{name: "register out of range", req: ipc.Request{Command: "register", Args: []string{"70000", "F3"}}, wantCode: 1, wantStderr: "outside"},
		{name: "register", req: ipc.Request{Command: "register", Args: []string{"3", "ctrl+f3", "quick", "note"}}, wantStdout: "registered 3 Ctrl+F3"},
		{name: "unregister unknown", req: ipc.Request{Command: "unregister", Args: []string{"99"}}, wantCode: 1, wantStderr: "no binding with id 99"},
		{name: "unregister usage", req: ipc.Request{Command: "unregister"}, wantCode: 1, wantStderr: "usage: unregister"},
		{name: "history bad count", req: ipc.Request{Command: "history", Args: []string{"-2"}}, wantCode: 1, wantStderr: "invalid count"},
		{name: "ocr", req: ipc.Request{Command: "ocr", Args: []string{imgPath}}, wantStdout: "recognized text\n"},
		{name: "ocr missing file", req: ipc.Request{Command: "ocr", Args: []string{filepath.Join(ta.dir, "none.png")}}, wantCode: 1, wantStderr: "open image"},
		{name: "log level", req: ipc.Request{Command: "log-level", Args: []string{"ERROR"}}, wantStdout: "log level error"},
		{name: "log level invalid", req: ipc.Request{Command: "log-level", Args: []string{"loud"}}, wantCode: 1, wantStderr: "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ta.Execute(tt.req)
			if resp.ExitCode != tt.wantCode {
				t.Fatalf("ExitCode = %d, want %d (stderr %q)", resp.ExitCode, tt.wantCode, resp.Stderr)
			}
			if !strings.Contains(resp.Stdout, tt.wantStdout) {
				t.Errorf("Stdout = %q, want it to contain %q", resp.Stdout, tt.wantStdout)
			}
			if !strings.Contains(resp.Stderr, tt.wantStderr) {
				t.Errorf("Stderr = %q, want it to contain %q", resp.Stderr, tt.wantStderr)
			}
		})
	}

	b, ok := ta.bindingMeta(3)
	if !ok || b.Name != "quick note" || b.Action != config.ActionNotify {
		t.Fatalf("runtime binding = %+v, %v", b, ok)
	}
	if resp := ta.Execute(ipc.Request{Command: "unregister", Args: []string{"3"}}); resp.ExitCode != 0 {
		t.Fatalf("unregister 3 = %+v", resp)
	}
}

func TestExecuteReload(t *testing.T) {
	ta := newTestApp(t, nil)

	cfg, err := config.Load(ta.configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Bindings = append(cfg.Bindings, config.BindingConfig{ID: 12, Combo: "Alt+F12", Action: config.ActionNotify})
	if err := config.Save(ta.configPath, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	resp := ta.Execute(ipc.Request{Command: "reload"})
	if resp.ExitCode != 0 || !strings.Contains(resp.Stdout, "reloaded 3 bindings") {
		t.Fatalf("reload = %+v", resp)
	}
	if !ta.backend.isActive(12) {
		t.Fatal("binding 12 not registered after reload")
	}

	if err := os.WriteFile(ta.configPath, []byte("bindings: [oops"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	resp = ta.Execute(ipc.Request{Command: "reload"})
	if resp.ExitCode != 1 || !strings.Contains(resp.Stderr, "reload:") {
		t.Fatalf("reload of broken file = %+v", resp)
	}
	if !ta.backend.isActive(12) {
		t.Fatal("broken reload dropped live bindings")
	}
}

func TestExecuteHistory(t *testing.T) {
	ta := newTestApp(t, nil)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	for i, name := range []string{"first", "second"} {
		if _, err := ta.journal.Record(ctx, journal.Activation{
			BindingID:   i + 1,
			Name:        name,
			Combo:       "Ctrl+A",
			Action:      config.ActionNotify,
			ActivatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if _, err := ta.journal.Record(ctx, journal.Activation{
		BindingID: 2, Name: "broken", Combo: "Ctrl+B", Action: config.ActionCommand,
		Error: "exit status 1", ActivatedAt: base.Add(5 * time.Second),
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	resp := ta.Execute(ipc.Request{Command: "history", Args: []string{"2"}})
	if resp.ExitCode != 0 {
		t.Fatalf("history = %+v", resp)
	}
	lines := strings.Split(strings.TrimSpace(resp.Stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("history lines = %q", lines)
	}
	if !strings.Contains(lines[0], "broken") || !strings.HasSuffix(lines[0], "error: exit status 1") {
		t.Errorf("newest line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "second") || !strings.HasSuffix(lines[1], "\tok") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestExecuteHistoryJournalDisabled(t *testing.T) {
	ta := newTestApp(t, func(c *config.Config) { c.Journal.Enabled = false })
	resp := ta.Execute(ipc.Request{Command: "history"})
	if resp.ExitCode != 1 || !strings.Contains(resp.Stderr, "journal disabled") {
		t.Fatalf("history = %+v", resp)
	}
}

func TestDisplayCombo(t *testing.T) {
	tests := map[string]string{
		"shift+ctrl+a": "Ctrl+Shift+A",
		"f9":           "F9",
		"Hyper+Q":      "Hyper+Q",
	}
	for raw, want := range tests {
		if got := displayCombo(raw); got != want {
			t.Errorf("displayCombo(%q) = %q, want %q", raw, got, want)
		}
	}
}
