// Package sink persists execution results for the dashboard's history view.
//
// DESIGN: The dispatcher streams each ExecutionResult here as it
// completes; the core keeps nothing in memory. SQLiteSink is the durable
// implementation; NopSink disables history (used in tests and minimal
// deployments). An append failure is the sink's problem alone - the
// dispatcher logs it and keeps going.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hookmux/hook-gateway/internal/hooks"
)

// StoredResult is one execution history row.
type StoredResult struct {
	EventID         string    `json:"eventId"`
	HookID          string    `json:"hookId"`
	HookName        string    `json:"hookName"`
	Scope           string    `json:"scope"`
	ProjectName     string    `json:"projectName,omitempty"`
	Success         bool      `json:"success"`
	Result          string    `json:"result,omitempty"`
	Error           string    `json:"error,omitempty"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	Timestamp       time.Time `json:"timestamp"`
}

// Sink receives execution results as they complete.
type Sink interface {
	Append(ctx context.Context, eventID string, res hooks.ExecutionResult) error
	Recent(ctx context.Context, limit int) ([]StoredResult, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT NOT NULL,
	hook_id       TEXT NOT NULL,
	hook_name     TEXT NOT NULL,
	scope         TEXT NOT NULL,
	project_name  TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL,
	result        TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);
`

// SQLiteSink stores execution history in a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the execution history database.
func NewSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open execution history db %s: %w", path, err)
	}
	// Serialized writes; the dispatcher streams results one at a time
	// per event but events run concurrently.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init execution history schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts one result row.
func (s *SQLiteSink) Append(ctx context.Context, eventID string, res hooks.ExecutionResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
			(event_id, hook_id, hook_name, scope, project_name, success, result, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eventID, res.HookID, res.HookName, string(res.Scope), res.ProjectName,
		boolToInt(res.Success), res.Result, res.Error, res.ExecutionTimeMs,
		res.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append execution result: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, hook_id, hook_name, scope, project_name, success, result, error, duration_ms, created_at
		FROM executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query execution history: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var r StoredResult
		var success int
		var createdAt string
		if err := rows.Scan(&r.EventID, &r.HookID, &r.HookName, &r.Scope, &r.ProjectName,
			&success, &r.Result, &r.Error, &r.ExecutionTimeMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		r.Success = success != 0
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Append(context.Context, string, hooks.ExecutionResult) error { return nil }
func (NopSink) Recent(context.Context, int) ([]StoredResult, error)         { return nil, nil }
func (NopSink) Close() error                                                { return nil }

var (
	_ Sink = (*SQLiteSink)(nil)
	_ Sink = NopSink{}
)
