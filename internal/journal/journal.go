// Package journal records hotkey activations in a local sqlite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultRecent is the number of entries Recent returns for n <= 0.
const DefaultRecent = 20

// maxRecent caps a single Recent query.
const maxRecent = 1000

// ErrClosed is returned by operations on a closed Journal.
var ErrClosed = errors.New("journal closed")

// Activation is one recorded hotkey activation.
type Activation struct {
	EventID     string
	BindingID   int
	Name        string
	Combo       string
	Action      string
	Error       string
	ActivatedAt time.Time
}

// Journal is an append-mostly activation log.
// Safe for concurrent use; database/sql pools the connection.
type Journal struct {
	conn   *sql.DB
	closed atomic.Bool
}

// Open opens or creates the journal at path and initializes the schema.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	// between the action worker and the pruner.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("journal %s: %w", pragma, err)
		}
	}

	j := &Journal{conn: conn}
	if err := j.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	slog.Debug("[DEBUG-JOURNAL] opened", "path", path)
	return j, nil
}

func (j *Journal) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS activations (
		event_id     TEXT PRIMARY KEY,
		binding_id   INTEGER NOT NULL,
		name         TEXT NOT NULL,
		combo        TEXT NOT NULL,
		action       TEXT NOT NULL,
		error        TEXT,
		activated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activations_activated_at ON activations(activated_at);
	CREATE INDEX IF NOT EXISTS idx_activations_binding_id ON activations(binding_id);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// Close closes the database. Idempotent.
func (j *Journal) Close() error {
	if j == nil || j.conn == nil || !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	return j.conn.Close()
}

func (j *Journal) usable() bool {
	return j != nil && j.conn != nil && !j.closed.Load()
}

// Record stores a. An empty EventID gets a fresh uuid and a zero
// ActivatedAt becomes now; the stored EventID is returned.
func (j *Journal) Record(ctx context.Context, a Activation) (string, error) {
	if !j.usable() {
		return "", ErrClosed
	}
	if a.EventID == "" {
		a.EventID = uuid.NewString()
	}
	if a.ActivatedAt.IsZero() {
		a.ActivatedAt = time.Now()
	}

	var errText sql.NullString
	if a.Error != "" {
		errText = sql.NullString{String: a.Error, Valid: true}
	}

	const query = `
		INSERT INTO activations (event_id, binding_id, name, combo, action, error, activated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := j.conn.ExecContext(ctx, query,
		a.EventID, a.BindingID, a.Name, a.Combo, a.Action, errText, a.ActivatedAt.UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("record activation %d: %w", a.BindingID, err)
	}
	return a.EventID, nil
}

// Recent returns up to n activations, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Activation, error) {
	if !j.usable() {
		return nil, ErrClosed
	}
	if n <= 0 {
		n = DefaultRecent
	}
	n = min(n, maxRecent)

	const query = `
		SELECT event_id, binding_id, name, combo, action, error, activated_at
		FROM activations
		ORDER BY activated_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := j.conn.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	defer rows.Close()

	var out []Activation
	for rows.Next() {
		var (
			a       Activation
			errText sql.NullString
			atMilli int64
		)
		if err := rows.Scan(&a.EventID, &a.BindingID, &a.Name, &a.Combo, &a.Action, &errText, &atMilli); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		if errText.Valid {
			a.Error = errText.String
		}
		a.ActivatedAt = time.UnixMilli(atMilli)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes activations older than olderThan and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if !j.usable() {
		return 0, ErrClosed
	}
	result, err := j.conn.ExecContext(ctx, `DELETE FROM activations WHERE activated_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune activations: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	if removed > 0 {
		slog.Debug("[DEBUG-JOURNAL] pruned", "removed", removed, "olderThan", olderThan)
	}
	return removed, nil
}

// Count returns the number of stored activations.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	if !j.usable() {
		return 0, ErrClosed
	}
	var n int64
	if err := j.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM activations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activations: %w", err)
	}
	return n, nil
}
