// Package fitness implements the SQLite-backed fitness log (spec
// §4.3): one row per evaluated generation, queried for history,
// top performers, and per-generation aggregates.
package fitness

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
CREATE TABLE IF NOT EXISTS fitness_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    generation  INTEGER  NOT NULL,
    commit_hash TEXT     NOT NULL,
    score       REAL     NOT NULL,
    runtime_sec REAL     NOT NULL,
    survived    BOOLEAN  NOT NULL,
    timestamp   TEXT     DEFAULT CURRENT_TIMESTAMP
)`

// Entry is a single fitness-log row.
type Entry struct {
	ID         int64
	Generation int
	CommitHash string
	Score      float64
	RuntimeSec float64
	Survived   bool
	Timestamp  time.Time
}

// GenerationStats is the aggregate over all entries for one
// generation.
type GenerationStats struct {
	AvgScore float64
	MaxScore float64
	MinScore float64
	Count    int
}

// Log is the fitness store.
type Log struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the fitness_log table exists.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create fitness db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open fitness db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping fitness db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create fitness_log table: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record inserts a fitness entry and returns its row id.
func (l *Log) Record(ctx context.Context, generation int, commitHash string, score, runtimeSec float64, survived bool) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO fitness_log (generation, commit_hash, score, runtime_sec, survived) VALUES (?, ?, ?, ?, ?)`,
		generation, commitHash, score, runtimeSec, survived,
	)
	if err != nil {
		return 0, fmt.Errorf("record fitness entry: %w", err)
	}
	return res.LastInsertId()
}

// Top returns the n highest-scoring entries, descending.
func (l *Log) Top(ctx context.Context, n int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, generation, commit_hash, score, runtime_sec, survived, timestamp
		 FROM fitness_log ORDER BY score DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query top fitness entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// History returns the most recent limit entries, newest first.
func (l *Log) History(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, generation, commit_hash, score, runtime_sec, survived, timestamp
		 FROM fitness_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query fitness history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GenerationStats returns the aggregate score stats for generation,
// or ok=false if no entries exist for it.
func (l *Log) GenerationStats(ctx context.Context, generation int) (stats GenerationStats, ok bool, err error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT AVG(score), MAX(score), MIN(score), COUNT(*)
		 FROM fitness_log WHERE generation = ?`, generation,
	)
	var avg, max, min sql.NullFloat64
	var count int
	if err := row.Scan(&avg, &max, &min, &count); err != nil {
		return GenerationStats{}, false, fmt.Errorf("query generation stats: %w", err)
	}
	if count == 0 {
		return GenerationStats{}, false, nil
	}
	return GenerationStats{AvgScore: avg.Float64, MaxScore: max.Float64, MinScore: min.Float64, Count: count}, true, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.Generation, &e.CommitHash, &e.Score, &e.RuntimeSec, &e.Survived, &ts); err != nil {
			return nil, fmt.Errorf("scan fitness entry: %w", err)
		}
		if parsed, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
			e.Timestamp = parsed
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
