// Package history persists finished transfers and file-manager actions in
// a local sqlite database so past activity survives restarts and stays
// searchable.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lab427/ferry/internal/transfer"
)

// DefaultRetention caps how many rows each table keeps. Older rows are
// pruned on insert.
const DefaultRetention = 10000

// TransferRecord is one finished queue job as stored.
type TransferRecord struct {
	ID        int64
	JobID     string
	Direction string
	Endpoint  string
	Source    string
	Dest      string
	Status    string
	Error     string
	Bytes     int64
	StartedAt time.Time
	Duration  time.Duration
}

// ActionRecord is one logged file-manager action.
type ActionRecord struct {
	ID       int64
	Endpoint string
	Action   string
	Path     string
	Detail   string
	At       time.Time
}

// Store wraps the sqlite database.
type Store struct {
	db        *sql.DB
	retention int
}

// DefaultPath returns the database location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ferry", "ferry.db"), nil
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	s := &Store{db: db, retention: DefaultRetention}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transfers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			source TEXT NOT NULL,
			dest TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			bytes INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_transfers_started ON transfers(started_at);
		CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			endpoint TEXT NOT NULL,
			action TEXT NOT NULL,
			path TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_actions_at ON actions(at);
		CREATE INDEX IF NOT EXISTS idx_actions_path ON actions(path);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTransfer stores a terminal queue job. It satisfies the queue's
// Recorder interface.
func (s *Store) RecordTransfer(job transfer.Job) error {
	errText := ""
	if job.Err != nil {
		errText = job.Err.Error()
	}
	_, err := s.db.Exec(`
		INSERT INTO transfers (job_id, direction, endpoint, source, dest, status, error, bytes, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, string(job.Direction), job.Endpoint.Name, job.Source, job.Dest,
		string(job.Status), errText, job.Bytes, job.StartedAt,
		job.FinishedAt.Sub(job.StartedAt).Milliseconds())
	if err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}
	return s.prune("transfers")
}

// RecentTransfers returns the newest transfers, most recent first.
func (s *Store) RecentTransfers(limit int) ([]TransferRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, job_id, direction, endpoint, source, dest, status, error, bytes, started_at, duration_ms
		FROM transfers ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TransferRecord
	for rows.Next() {
		var r TransferRecord
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.JobID, &r.Direction, &r.Endpoint, &r.Source, &r.Dest,
			&r.Status, &r.Error, &r.Bytes, &r.StartedAt, &durationMS); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

// LogAction stores one file-manager action (trash, rename, delete and so
// on) for the audit trail.
func (s *Store) LogAction(endpoint, action, path, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO actions (endpoint, action, path, detail, at) VALUES (?, ?, ?, ?, ?)
	`, endpoint, action, path, detail, time.Now())
	if err != nil {
		return fmt.Errorf("recording action: %w", err)
	}
	return s.prune("actions")
}

// RecentActions returns the newest actions, most recent first.
func (s *Store) RecentActions(limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryActions(`
		SELECT id, endpoint, action, path, detail, at
		FROM actions ORDER BY id DESC LIMIT ?
	`, limit)
}

// SearchActions returns actions whose path or detail contains text.
func (s *Store) SearchActions(text string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(text) + "%"
	return s.queryActions(`
		SELECT id, endpoint, action, path, detail, at
		FROM actions
		WHERE path LIKE ? ESCAPE '\' OR detail LIKE ? ESCAPE '\'
		ORDER BY id DESC LIMIT ?
	`, pattern, pattern, limit)
}

func (s *Store) queryActions(query string, args ...any) ([]ActionRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.ID, &r.Endpoint, &r.Action, &r.Path, &r.Detail, &r.At); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// prune drops the oldest rows beyond the retention cap.
func (s *Store) prune(table string) error {
	_, err := s.db.Exec(fmt.Sprintf(`
		DELETE FROM %s WHERE id <= (
			SELECT id FROM %s ORDER BY id DESC LIMIT 1 OFFSET ?
		)
	`, table, table), s.retention)
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
