// Package audit implements an optional, crash-recovery-independent
// append-only log: one row per served
// chunk, for offline replay and debugging only. No generator state is
// ever reconstructed from this log.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Log wraps a sqlite3-backed append-only audit table.
type Log struct {
	db *sql.DB
}

// Open creates (or reuses) a sqlite3 database at path and ensures the
// audit table exists.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS chunk_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_millis  INTEGER NOT NULL,
	machine_id INTEGER NOT NULL,
	first_id   INTEGER NOT NULL,
	count      INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error { return l.db.Close() }

// Record appends one (timestamp, machine_id, first_id, count) row for a
// served chunk.
func (l *Log) Record(ts time.Time, machineID uint64, firstID int64, count int) error {
	_, err := l.db.Exec(
		`INSERT INTO chunk_log (ts_millis, machine_id, first_id, count) VALUES (?, ?, ?, ?)`,
		ts.UnixMilli(), machineID, firstID, count,
	)
	if err != nil {
		return fmt.Errorf("audit: record chunk: %w", err)
	}
	return nil
}

// Entry is one row read back from the audit log.
type Entry struct {
	TsMillis  int64
	MachineID uint64
	FirstID   int64
	Count     int
}

// Recent returns the last n recorded entries, most recent first. It is a
// debugging aid only, never consulted on startup.
func (l *Log) Recent(n int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT ts_millis, machine_id, first_id, count FROM chunk_log ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TsMillis, &e.MachineID, &e.FirstID, &e.Count); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
