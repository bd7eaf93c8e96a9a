package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"
)

// Entry is the view of a log record handed to an EntryCallback.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	// Group is the dot-separated slog group of the logger that emitted it.
	Group string
	// Attrs holds the record attributes rendered as strings.
	Attrs map[string]string
}

// EntryCallback receives records at or above the tee threshold. It runs on
// the logging goroutine and must not log through the same handler.
type EntryCallback func(Entry)

// TeeHandler wraps a base [slog.Handler] and tees records at or above
// minLevel to a callback. All records reach the base handler; only the
// callback is gated by minLevel.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Level
	group    string
	attrs    []slog.Attr
}

// NewTeeHandler creates a TeeHandler. A nil callback only delegates.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback EntryCallback) *TeeHandler {
	return &TeeHandler{
		base:     base,
		callback: callback,
		minLevel: minLevel,
	}
}

// Enabled defers to the base handler; minLevel does not widen visibility.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler, then invokes the callback
// when the level meets minLevel. The callback runs even if the base handler
// fails.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.callback != nil && record.Level >= h.minLevel {
		entry := Entry{
			Time:    record.Time,
			Level:   record.Level,
			Message: record.Message,
			Group:   h.group,
		}
		if n := len(h.attrs) + record.NumAttrs(); n > 0 {
			entry.Attrs = make(map[string]string, n)
			for _, a := range h.attrs {
				entry.Attrs[a.Key] = a.Value.String()
			}
			record.Attrs(func(a slog.Attr) bool {
				entry.Attrs[a.Key] = a.Value.String()
				return true
			})
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					// stderr, not slog: logging here would re-enter this handler.
					fmt.Fprintf(os.Stderr, "[logging] tee callback panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.callback(entry)
		}()
	}

	return err
}

// WithAttrs applies attrs to the base handler and remembers them for
// callback entries.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    h.group,
		attrs:    merged,
	}
}

// WithGroup appends name to the accumulated group, separated by ".".
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &TeeHandler{
		base:     h.base.WithGroup(name),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    newGroup,
		attrs:    h.attrs,
	}
}
