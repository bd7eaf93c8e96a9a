package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"hotkeyd/internal/config"
	"hotkeyd/internal/hotkeys"
	"hotkeyd/internal/ipc"
	"hotkeyd/internal/journal"
)

const controlOCRTimeout = 30 * time.Second

type controlHandler func(a *App, args []string) ipc.Response

var controlCommands = map[string]controlHandler{
	"ping":       (*App).cmdPing,
	"list":       (*App).cmdList,
	"reload":     (*App).cmdReload,
	"register":   (*App).cmdRegister,
	"unregister": (*App).cmdUnregister,
	"history":    (*App).cmdHistory,
	"ocr":        (*App).cmdOCR,
	"backend":    (*App).cmdBackend,
	"log-level":  (*App).cmdLogLevel,
}

// Execute implements ipc.CommandExecutor for the control channel.
func (a *App) Execute(req ipc.Request) ipc.Response {
	handler, ok := controlCommands[req.Command]
	if !ok {
		return ipc.Fail(fmt.Sprintf("unknown command: %s", req.Command))
	}
	slog.Debug("[ipc] control command", "command", req.Command, "args", len(req.Args))
	return handler(a, req.Args)
}

func (a *App) cmdPing([]string) ipc.Response {
	return ipc.OK("pong\n")
}

func (a *App) cmdList([]string) ipc.Response {
	var sb strings.Builder
	for _, b := range a.liveBindings() {
		fmt.Fprintf(&sb, "%d\t%s\t%s\t%s\n", b.ID, displayCombo(b.Combo), b.Action, b.Label())
	}
	return ipc.OK(sb.String())
}

func (a *App) cmdReload([]string) ipc.Response {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return ipc.Fail(fmt.Sprintf("reload: %v", err))
	}
	a.applyConfig(cfg)
	return ipc.OK(fmt.Sprintf("reloaded %d bindings\n", len(a.liveBindings())))
}

// cmdRegister takes <id> <combo> [name]. Runtime bindings use the notify
// action and are not written back to the config file.
func (a *App) cmdRegister(args []string) ipc.Response {
	if len(args) < 2 {
		return ipc.Fail("usage: register <id> <combo> [name]")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return ipc.Fail(fmt.Sprintf("register: invalid id %q", args[0]))
	}
	b := config.BindingConfig{
		ID:     id,
		Combo:  args[1],
		Action: config.ActionNotify,
		Name:   strings.Join(args[2:], " "),
	}
	if err := config.ValidateBinding(b); err != nil {
		return ipc.Fail(fmt.Sprintf("register: %v", err))
	}
	if err := a.registerBinding(b); err != nil {
		return ipc.Fail(fmt.Sprintf("register: %v", err))
	}
	return ipc.OK(fmt.Sprintf("registered %d %s\n", id, displayCombo(b.Combo)))
}

func (a *App) cmdUnregister(args []string) ipc.Response {
	if len(args) != 1 {
		return ipc.Fail("usage: unregister <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return ipc.Fail(fmt.Sprintf("unregister: invalid id %q", args[0]))
	}
	if !a.unregisterBinding(id) {
		return ipc.Fail(fmt.Sprintf("unregister: no binding with id %d", id))
	}
	return ipc.OK(fmt.Sprintf("unregistered %d\n", id))
}

func (a *App) cmdHistory(args []string) ipc.Response {
	if a.journal == nil {
		return ipc.Fail("history: journal disabled")
	}
	n := journal.DefaultRecent
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return ipc.Fail(fmt.Sprintf("history: invalid count %q", args[0]))
		}
		n = v
	}
	entries, err := a.journal.Recent(context.Background(), n)
	if err != nil {
		return ipc.Fail(fmt.Sprintf("history: %v", err))
	}
	var sb strings.Builder
	for _, e := range entries {
		status := "ok"
		if e.Error != "" {
			status = "error: " + e.Error
		}
		fmt.Fprintf(&sb, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.ActivatedAt.Local().Format(time.RFC3339), e.BindingID, e.Combo, e.Action, e.Name, status)
	}
	return ipc.OK(sb.String())
}

func (a *App) cmdOCR(args []string) ipc.Response {
	if len(args) != 1 {
		return ipc.Fail("usage: ocr <image-path>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlOCRTimeout)
	defer cancel()
	text, err := a.ocr.RecognizeFile(ctx, args[0])
	if err != nil {
		return ipc.Fail(fmt.Sprintf("ocr: %v", err))
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return ipc.OK(text)
}

func (a *App) cmdBackend([]string) ipc.Response {
	return ipc.OK(fmt.Sprintf("hotkeys=%s ocr=%s\n", a.registry.BackendName(), a.ocr.BackendType()))
}

func (a *App) cmdLogLevel(args []string) ipc.Response {
	if len(args) != 1 {
		return ipc.Fail("usage: log-level <debug|info|warn|error>")
	}
	if a.logOut == nil {
		return ipc.Fail("log-level: logging not initialized")
	}
	if err := a.logOut.SetLevel(args[0]); err != nil {
		return ipc.Fail(fmt.Sprintf("log-level: %v", err))
	}
	slog.Info("[DEBUG-CONFIG] log level changed", "level", args[0], "source", "control")
	return ipc.OK(fmt.Sprintf("log level %s\n", strings.ToLower(args[0])))
}

// displayCombo normalizes a combo for output, falling back to the raw text.
func displayCombo(raw string) string {
	c, err := hotkeys.ParseCombo(raw)
	if err != nil {
		return raw
	}
	return c.String()
}
