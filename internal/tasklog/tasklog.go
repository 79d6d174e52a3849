// Package tasklog persists a durable record of every task the task
// executor has processed, independent of the in-memory FIFO queue in
// internal/state (which only holds pending work). Grounded on the
// same SQLite-store shape as internal/fitness and internal/skills.
package tasklog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id     TEXT     NOT NULL,
    chat_id     TEXT     NOT NULL DEFAULT '',
    text        TEXT     NOT NULL,
    response    TEXT     NOT NULL DEFAULT '',
    succeeded   INTEGER  NOT NULL DEFAULT 1,
    created_at  TEXT     DEFAULT CURRENT_TIMESTAMP
)`

// Record is one completed task entry.
type Record struct {
	ID        int64
	TaskID    string
	ChatID    string
	Text      string
	Response  string
	Succeeded bool
	CreatedAt time.Time
}

// Log is the durable task-history store.
type Log struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create task log dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open task log db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping task log db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create task_log table: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append records a completed task.
func (l *Log) Append(ctx context.Context, taskID, chatID, text, response string, succeeded bool) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO task_log (task_id, chat_id, text, response, succeeded) VALUES (?, ?, ?, ?, ?)`,
		taskID, chatID, text, response, succeeded,
	)
	if err != nil {
		return fmt.Errorf("append task log entry: %w", err)
	}
	return nil
}

// Recent returns the most recent limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, task_id, chat_id, text, response, succeeded, created_at
		 FROM task_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent task log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var succeeded int
		var ts string
		if err := rows.Scan(&r.ID, &r.TaskID, &r.ChatID, &r.Text, &r.Response, &succeeded, &ts); err != nil {
			return nil, fmt.Errorf("scan task log entry: %w", err)
		}
		r.Succeeded = succeeded != 0
		if parsed, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
			r.CreatedAt = parsed
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
