// Package store provides SQLite-based storage for captured key events.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
)

// ErrSessionNotFound is returned for operations on an unknown session id.
var ErrSessionNotFound = errors.New("store: session not found")

// DefaultBusyTimeout is how long SQLite waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Store represents the SQLite event store.
type Store struct {
	db   *sql.DB
	path string

	closeOnce sync.Once
	closeErr  error
}

// Option configures Open.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the capture worker is the only caller on the hot path.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Key events are sensitive; restrict the database to the owner.
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Name identifies the store as a capture sink.
func (s *Store) Name() string { return "sqlite" }

// Close closes the database connection. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	return schemaVersion(s.db)
}

// BeginSession records the start of a capture session. Beginning a session
// that already exists reopens it and keeps its original identity.
func (s *Store) BeginSession(ctx context.Context, sessionID string, id identity.Record, started time.Time) error {
	sess := NewSession(sessionID, id, started)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, device_id, account_id, device_name, username, platform, started_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET ended_ns = NULL`,
		sess.SessionID, sess.DeviceID, sess.AccountID, sess.DeviceName, sess.Username, sess.Platform, sess.StartedNs,
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// EndSession stamps the session end time.
func (s *Store) EndSession(ctx context.Context, sessionID string, ended time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_ns = ? WHERE session_id = ?`,
		ended.UnixNano(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

const insertKeyEvent = `
	INSERT INTO key_events (session_id, key_name, event, timestamp_ns, scan_code, keyboard_layout, active_window)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, x execer, e keystroke.Event) (int64, error) {
	if !e.Kind.Valid() {
		return 0, fmt.Errorf("%w: %d", keystroke.ErrInvalidEventKind, uint8(e.Kind))
	}
	result, err := x.ExecContext(ctx, insertKeyEvent,
		e.SessionID, e.KeyName, e.Kind.String(), e.Timestamp, e.ScanCode, e.KeyboardLayout, e.ActiveWindow,
	)
	if err != nil {
		return 0, fmt.Errorf("insert key event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// InsertKeyEvent stores one event and returns its row id.
func (s *Store) InsertKeyEvent(ctx context.Context, e keystroke.Event) (int64, error) {
	return insertEvent(ctx, s.db, e)
}

// Write stores ev. It implements the capture sink contract.
func (s *Store) Write(ctx context.Context, ev keystroke.Event) error {
	_, err := s.InsertKeyEvent(ctx, ev)
	return err
}

// InsertKeyEvents stores events in a single transaction. Either all rows are
// written or none are.
func (s *Store) InsertKeyEvents(ctx context.Context, events []keystroke.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertKeyEvent)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: %d", keystroke.ErrInvalidEventKind, uint8(e.Kind))
		}
		if _, err := stmt.ExecContext(ctx,
			e.SessionID, e.KeyName, e.Kind.String(), e.Timestamp, e.ScanCode, e.KeyboardLayout, e.ActiveWindow,
		); err != nil {
			return fmt.Errorf("insert key event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const sessionColumns = `
	s.session_id, s.device_id, s.account_id, s.device_name, s.username, s.platform,
	s.started_ns, s.ended_ns,
	(SELECT COUNT(*) FROM key_events k WHERE k.session_id = s.session_id)`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	var ended sql.NullInt64
	err := row.Scan(
		&sess.SessionID, &sess.DeviceID, &sess.AccountID, &sess.DeviceName, &sess.Username, &sess.Platform,
		&sess.StartedNs, &ended, &sess.EventCount,
	)
	if err != nil {
		return Session{}, err
	}
	if ended.Valid {
		v := ended.Int64
		sess.EndedNs = &v
	}
	return sess, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started_ns DESC, s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionEvents returns the events of a session in capture order.
func (s *Store) SessionEvents(ctx context.Context, sessionID string) ([]keystroke.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, key_name, event, timestamp_ns, scan_code, keyboard_layout, active_window
		FROM key_events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session events: %w", err)
	}
	defer rows.Close()

	var events []keystroke.Event
	for rows.Next() {
		var e keystroke.Event
		var kind string
		if err := rows.Scan(&e.SessionID, &e.KeyName, &kind, &e.Timestamp, &e.ScanCode, &e.KeyboardLayout, &e.ActiveWindow); err != nil {
			return nil, fmt.Errorf("scan key event: %w", err)
		}
		if e.Kind, err = keystroke.ParseEventKind(kind); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of stored events. An empty session id counts
// across all sessions.
func (s *Store) CountEvents(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	var err error
	if sessionID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM key_events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM key_events WHERE session_id = ?`, sessionID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
