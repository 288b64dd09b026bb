// Package journal persists per-session change reports in SQLite.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shelltree/internal/engine/ast"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	defaultBusyTimeout = 2 * time.Second

	// Fixed-width UTC timestamps keep lexical and chronological order equal.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry kinds.
const (
	KindAppend = "append"
	KindReset  = "reset"
)

// Entry is one journaled session event.
type Entry struct {
	ID           int64            `json:"id"`
	Kind         string           `json:"kind"`
	SessionID    string           `json:"session_id"`
	Seq          int              `json:"seq"`
	Timestamp    time.Time        `json:"timestamp"`
	FragmentSize int              `json:"fragment_size"`
	BufferSize   int              `json:"buffer_size"`
	HasErrors    bool             `json:"has_errors"`
	RangeCount   int              `json:"range_count"`
	NodeCount    int              `json:"node_count"`
	Report       ast.ChangeReport `json:"report"`
}

// SessionSummary aggregates the entries of one session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Entries   int       `json:"entries"`
	LastSeq   int       `json:"last_seq"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Open creates or opens the journal at path. A non-positive busyTimeout
// selects two seconds.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("journal path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("journal path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory %q: %w", dir, err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite journal %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Record appends e. Counts are derived from the report when left zero.
func (s *Store) Record(e Entry) error {
	return s.RecordBatch([]Entry{e})
}

// RecordBatch appends entries in one transaction.
func (s *Store) RecordBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		row, err := entryRow(e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return s.withRetry("record entries", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := tx.Exec(`
INSERT INTO entries (
  kind, session_id, seq, ts_utc, fragment_size, buffer_size, has_errors, range_count, node_count, report_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, row...); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

func entryRow(e Entry) ([]any, error) {
	if strings.TrimSpace(e.SessionID) == "" {
		return nil, fmt.Errorf("journal entry needs a session id")
	}
	if e.Kind == "" {
		e.Kind = KindAppend
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.RangeCount == 0 {
		e.RangeCount = len(e.Report.ChangedRanges)
	}
	if e.NodeCount == 0 {
		e.NodeCount = len(e.Report.ChangedNodes)
	}
	report, err := json.Marshal(e.Report)
	if err != nil {
		return nil, fmt.Errorf("encode change report: %w", err)
	}
	return []any{
		e.Kind,
		e.SessionID,
		e.Seq,
		e.Timestamp.UTC().Format(timestampLayout),
		e.FragmentSize,
		e.BufferSize,
		e.HasErrors,
		e.RangeCount,
		e.NodeCount,
		string(report),
	}, nil
}

// List returns the latest limit entries of a session, oldest first. A
// non-positive limit returns everything.
func (s *Store) List(sessionID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT id, kind, session_id, seq, ts_utc, fragment_size, buffer_size, has_errors, range_count, node_count, report_json
FROM entries
WHERE session_id = ?
ORDER BY id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := s.withRetry("list entries", func() error {
		var qErr error
		rows, qErr = s.db.Query(query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			tsRaw     string
			reportRaw string
			e         Entry
		)
		if err := rows.Scan(
			&e.ID,
			&e.Kind,
			&e.SessionID,
			&e.Seq,
			&tsRaw,
			&e.FragmentSize,
			&e.BufferSize,
			&e.HasErrors,
			&e.RangeCount,
			&e.NodeCount,
			&reportRaw,
		); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse entry timestamp %q: %w", tsRaw, err)
		}
		e.Timestamp = ts.UTC()
		if err := json.Unmarshal([]byte(reportRaw), &e.Report); err != nil {
			return nil, fmt.Errorf("decode change report of entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Sessions summarizes every journaled session, most recently active first.
func (s *Store) Sessions() ([]SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("list sessions", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT session_id, COUNT(*), MAX(seq), MIN(ts_utc), MAX(ts_utc)
FROM entries
GROUP BY session_id
ORDER BY MAX(ts_utc) DESC, session_id ASC`)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SessionSummary, 0)
	for rows.Next() {
		var (
			sum         SessionSummary
			first, last string
		)
		if err := rows.Scan(&sum.SessionID, &sum.Entries, &sum.LastSeq, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if sum.FirstSeen, err = time.Parse(time.RFC3339Nano, first); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", first, err)
		}
		if sum.LastSeen, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", last, err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
