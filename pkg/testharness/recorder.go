package testharness

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGo)
)

// TranscriptStore persists a recorded session's NDJSON lines to a local
// SQLite file so a scripted replay can be inspected or replayed across
// test runs, grounded on pkg/fleet/store_sqlite.go's persistence pattern
// (DESIGN.md).
type TranscriptStore struct {
	db *sql.DB
}

// OpenTranscriptStore opens (creating if needed) a transcript database at
// dbPath. Use ":memory:" for an ephemeral in-process store.
func OpenTranscriptStore(dbPath string) (*TranscriptStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	store := &TranscriptStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *TranscriptStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS transcript_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		direction TEXT NOT NULL,
		line TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	)`)
	return err
}

// Append records one NDJSON line observed for the named session.
// direction is "in" (backend to host) or "out" (host to backend).
func (s *TranscriptStore) Append(session, direction, line string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO transcript_lines (session, direction, line, recorded_at) VALUES (?, ?, ?, ?)`,
		session, direction, line, at.Unix(),
	)
	return err
}

// Lines returns every recorded line for session in insertion order.
func (s *TranscriptStore) Lines(session string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT line FROM transcript_lines WHERE session = ? ORDER BY id ASC`, session,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *TranscriptStore) Close() error {
	return s.db.Close()
}
