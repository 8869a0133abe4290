// Package journal keeps a local SQLite record of delivered events.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mrzor/fswatch/internal/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_ns       INTEGER NOT NULL,
    type              INTEGER NOT NULL,
    path              TEXT NOT NULL,
    old_path          TEXT NOT NULL DEFAULT '',
    pid               INTEGER NOT NULL,
    sequence          INTEGER NOT NULL,
    record_type       INTEGER NOT NULL,
    originating_time  INTEGER NOT NULL,
    completion_time   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_path ON events(path, recorded_ns);
CREATE INDEX IF NOT EXISTS idx_events_pid ON events(pid);
`

// Entry is an event as stored in the journal.
type Entry struct {
	ID         int64
	RecordedAt time.Time
	Event      event.Event
}

// Journal is an output sink writing to SQLite.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Name implements output.Sink.
func (j *Journal) Name() string { return "journal" }

// Deliver implements output.Sink.
func (j *Journal) Deliver(ev event.Event) error {
	_, err := j.Record(ev)
	return err
}

// Record inserts ev and returns its row ID.
func (j *Journal) Record(ev event.Event) (int64, error) {
	result, err := j.db.Exec(`
		INSERT INTO events (recorded_ns, type, path, old_path, pid, sequence, record_type, originating_time, completion_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.now().UnixNano(), int32(ev.Type), ev.Path, ev.OldPath, int64(ev.PID), ev.Sequence,
		int64(ev.RecordType), int64(ev.OriginatingTime), int64(ev.CompletionTime),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.Query(`
		SELECT id, recorded_ns, type, path, old_path, pid, sequence, record_type, originating_time, completion_time
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                            Entry
			recorded                     int64
			typ                          int32
			pid, recordType, orig, compl int64
		)
		if err := rows.Scan(&e.ID, &recorded, &typ, &e.Event.Path, &e.Event.OldPath, &pid,
			&e.Event.Sequence, &recordType, &orig, &compl); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.RecordedAt = time.Unix(0, recorded)
		e.Event.Type = event.Type(typ)
		e.Event.PID = uint64(pid)
		e.Event.RecordType = uint32(recordType)
		e.Event.OriginatingTime = uint64(orig)
		e.Event.CompletionTime = uint64(compl)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
