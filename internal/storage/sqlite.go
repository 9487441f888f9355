package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"

	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/tasknames"
)

const defaultBatchSize = 1000

// ErrUnknownSession reports a session id with no row in the sessions table.
var ErrUnknownSession = errors.New("unknown session")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions
	(
		id         VARCHAR(20) PRIMARY KEY,
		started_at INTEGER     NOT NULL,
		source     TEXT        NOT NULL DEFAULT '',
		protocol   TEXT        NOT NULL DEFAULT '',
		exit_code  INTEGER     NULL
	);`,
	`CREATE TABLE IF NOT EXISTS events
	(
		session_id      VARCHAR(20) NOT NULL,
		seq             INTEGER     NOT NULL,
		eventtype       TEXT        NOT NULL,
		tick            INTEGER     NOT NULL,
		timestamp       INTEGER     NOT NULL,
		taskid          INTEGER     NOT NULL,
		affected_object INTEGER     NOT NULL,
		delay           INTEGER     NOT NULL,
		task_name       TEXT        NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS events_session_index ON events (session_id, seq);`,
	`CREATE TABLE IF NOT EXISTS task_names
	(
		session_id VARCHAR(20) NOT NULL,
		seq        INTEGER     NOT NULL,
		raw_row    TEXT        NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS task_names_session_index ON task_names (session_id, seq);`,
}

// SQLiteStore keeps any number of trace sessions in one SQLite file.
type SQLiteStore struct {
	*sql.DB

	path      string
	batchSize int
	now       func() time.Time
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithBatchSize sets how many rows are buffered before a transaction is
// committed.
func WithBatchSize(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		path:      path,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	s.DB = db

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SessionInfo describes one stored session.
type SessionInfo struct {
	ID        string
	StartedAt time.Time
	Source    string
	Protocol  string
	// ExitCode is invalid for sessions that ended without a finish flag.
	ExitCode   sql.NullInt32
	EventCount int
}

// StartSession registers a new session and returns a writer for it.
func (s *SQLiteStore) StartSession(source, protocolVersion string) (*SessionWriter, error) {
	id := xid.New().String()

	_, err := s.Exec(
		`INSERT INTO sessions (id, started_at, source, protocol) VALUES (?, ?, ?, ?)`,
		id, s.now().UnixMilli(), source, protocolVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return &SessionWriter{store: s, id: id}, nil
}

// Sessions lists stored sessions, oldest first.
func (s *SQLiteStore) Sessions() ([]SessionInfo, error) {
	rows, err := s.Query(`
		SELECT
			s.id,
			s.started_at,
			s.source,
			s.protocol,
			s.exit_code,
			(SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at, s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		var startedAt int64
		err := rows.Scan(&info.ID, &startedAt, &info.Source, &info.Protocol, &info.ExitCode, &info.EventCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.StartedAt = time.UnixMilli(startedAt)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// LoadEvents returns the events of a session in arrival order.
func (s *SQLiteStore) LoadEvents(sessionID string) ([]protocol.Event, error) {
	if err := s.checkSession(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.Query(`
		SELECT eventtype, tick, timestamp, taskid, affected_object, delay, task_name
		FROM events
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []protocol.Event{}
	for rows.Next() {
		var ev protocol.Event
		err := rows.Scan(&ev.Tag, &ev.Tick, &ev.Timestamp, &ev.TaskID, &ev.AffectedObject, &ev.Delay, &ev.TaskName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LoadNames rebuilds the task name table of a session.
func (s *SQLiteStore) LoadNames(sessionID string) (*tasknames.Table, error) {
	if err := s.checkSession(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.Query(`SELECT raw_row FROM task_names WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task names: %w", err)
	}
	defer rows.Close()

	table := tasknames.New()
	for rows.Next() {
		var row string
		if err := rows.Scan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan task name: %w", err)
		}
		table.Add(row)
	}
	return table, rows.Err()
}

func (s *SQLiteStore) checkSession(id string) error {
	var n int
	if err := s.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

// SessionWriter buffers the rows of one session and commits them in batches.
// It implements Sink.
type SessionWriter struct {
	store *SQLiteStore
	id    string

	events   []protocol.Event
	names    []tasknames.Entry
	eventSeq int
	nameSeq  int
}

// ID returns the xid of the session.
func (w *SessionWriter) ID() string {
	return w.id
}

// WriteEvent buffers an event, committing when the batch is full.
func (w *SessionWriter) WriteEvent(ev protocol.Event) error {
	w.events = append(w.events, ev)
	if len(w.events) >= w.store.batchSize {
		return w.Flush()
	}
	return nil
}

// WriteName buffers a task name row.
func (w *SessionWriter) WriteName(e tasknames.Entry) error {
	w.names = append(w.names, e)
	if len(w.names) >= w.store.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush commits all buffered rows in one transaction.
func (w *SessionWriter) Flush() error {
	if len(w.events) == 0 && len(w.names) == 0 {
		return nil
	}

	tx, err := w.store.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := w.insertEvents(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := w.insertNames(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	w.eventSeq += len(w.events)
	w.nameSeq += len(w.names)
	w.events = nil
	w.names = nil
	return nil
}

func (w *SessionWriter) insertEvents(tx *sql.Tx) error {
	if len(w.events) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO events VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range w.events {
		_, err := stmt.Exec(w.id, w.eventSeq+i, ev.Tag, ev.Tick, ev.Timestamp, ev.TaskID, ev.AffectedObject, ev.Delay, ev.TaskName)
		if err != nil {
			return fmt.Errorf("failed to insert event %+v: %w", ev, err)
		}
	}
	return nil
}

func (w *SessionWriter) insertNames(tx *sql.Tx) error {
	if len(w.names) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO task_names VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare name insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range w.names {
		if _, err := stmt.Exec(w.id, w.nameSeq+i, e.Row); err != nil {
			return fmt.Errorf("failed to insert task name %q: %w", e.Row, err)
		}
	}
	return nil
}

// FinishSession flushes pending rows and records the device exit code.
// Sessions never finished keep a NULL exit code.
func (w *SessionWriter) FinishSession(exitCode int32) error {
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := w.store.Exec(`UPDATE sessions SET exit_code = ? WHERE id = ?`, exitCode, w.id)
	if err != nil {
		return fmt.Errorf("failed to record exit code: %w", err)
	}
	return nil
}

// Close flushes pending rows. It does not close the store.
func (w *SessionWriter) Close() error {
	return w.Flush()
}
