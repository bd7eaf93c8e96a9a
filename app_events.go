package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hotkeyd/internal/config"
	"hotkeyd/internal/journal"
	"hotkeyd/internal/logging"
	"hotkeyd/internal/procutil"
	"hotkeyd/internal/workerutil"
	"hotkeyd/internal/wsserver"
)

const (
	// commandTimeout bounds a command binding's child process.
	commandTimeout = 30 * time.Second
	// ocrTimeout bounds one recognition run.
	ocrTimeout = 30 * time.Second
	// maxCommandOutput is how much command output is kept for logs and events.
	maxCommandOutput = 4 * 1024
)

// activation is one hotkey press handed from the native event thread to
// the action worker.
type activation struct {
	binding config.BindingConfig
	at      time.Time
}

// onActivated is the registry observer. It runs on the native event thread
// and must return quickly: it only queues the activation.
func (a *App) onActivated(id int) {
	defer workerutil.RecoverCallback("activation observer")

	b, ok := a.bindingMeta(id)
	if !ok {
		slog.Debug("[DEBUG-HOTKEY] activation for unknown binding ignored", "id", id)
		return
	}
	select {
	case a.activations <- activation{binding: b, at: time.Now()}:
	default:
		a.dropped.Add(1)
		slog.Warn("[DEBUG-HOTKEY] action worker saturated, activation dropped",
			"id", id, "name", b.Label())
	}
}

// runActionWorker performs queued activations until ctx is done.
func (a *App) runActionWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case act := <-a.activations:
			a.handleActivation(ctx, act)
		}
	}
}

func (a *App) handleActivation(ctx context.Context, act activation) {
	b := act.binding
	ev := wsserver.NewActivatedEvent(b.ID, b.Label(), b.Combo, b.Action, act.at)

	result, err := a.runAction(ctx, b)
	ev.Result = result
	if err != nil {
		ev.Error = err.Error()
		slog.Warn("[DEBUG-ACTION] action failed",
			"id", b.ID, "name", b.Label(), "action", b.Action, "error", err)
	}

	if a.journal != nil {
		if _, jErr := a.journal.Record(ctx, journal.Activation{
			EventID:     ev.EventID,
			BindingID:   b.ID,
			Name:        b.Label(),
			Combo:       b.Combo,
			Action:      b.Action,
			Error:       ev.Error,
			ActivatedAt: act.at,
		}); jErr != nil && ctx.Err() == nil {
			slog.Warn("[DEBUG-JOURNAL] record failed", "id", b.ID, "error", jErr)
		}
	}
	if a.hub != nil {
		a.hub.Publish(ev)
	}
}

// runAction performs the action of b and returns its text result.
func (a *App) runAction(ctx context.Context, b config.BindingConfig) (string, error) {
	switch b.Action {
	case config.ActionNotify, "":
		slog.Info("[DEBUG-ACTION] hotkey activated", "id", b.ID, "name", b.Label(), "combo", b.Combo)
		return "", nil

	case config.ActionCommand:
		return a.runCommand(ctx, b)

	case config.ActionOCR:
		ocrCtx, cancel := context.WithTimeout(ctx, ocrTimeout)
		defer cancel()
		text, err := a.ocr.RecognizeFile(ocrCtx, b.Image)
		if err != nil {
			return "", err
		}
		slog.Info("[DEBUG-ACTION] text recognized",
			"id", b.ID, "image", b.Image, "backend", a.ocr.BackendType(), "chars", len(text))
		return text, nil
	}
	return "", fmt.Errorf("unknown action %q", b.Action)
}

func (a *App) runCommand(ctx context.Context, b config.BindingConfig) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd, err := procutil.NewCommand(cmdCtx, b.Command)
	if err != nil {
		return "", err
	}
	started := time.Now()
	out, err := cmd.CombinedOutput()
	output := truncateOutput(out)
	if err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("command %q timed out after %s", b.Command[0], commandTimeout)
		}
		return output, fmt.Errorf("command %q: %w", b.Command[0], err)
	}
	slog.Info("[DEBUG-ACTION] command finished",
		"id", b.ID, "command", b.Command[0], "elapsed", time.Since(started).Round(time.Millisecond))
	return output, nil
}

func truncateOutput(out []byte) string {
	text := strings.TrimSpace(string(out))
	if len(text) <= maxCommandOutput {
		return text
	}
	return strings.ToValidUTF8(text[:maxCommandOutput], "") + "..."
}

// onLogEntry receives Warn+ records from the log tee. It must not log.
func (a *App) onLogEntry(e logging.Entry) {
	select {
	case a.logEvents <- wsserver.NewLogEvent(e.Level.String(), e.Message, e.Group, e.Attrs, e.Time):
	default:
		a.droppedLogs.Add(1)
	}
}

// runLogStream forwards teed log records to stream clients.
func (a *App) runLogStream(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.logEvents:
			a.hub.Publish(ev)
		}
	}
}
