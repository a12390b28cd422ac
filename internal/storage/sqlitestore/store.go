// Package sqlitestore persists sessions in a SQLite database. Each row keeps
// the full session document as JSON next to the columns used for ordering
// and optimistic concurrency.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/store"
)

type Storage struct {
	db   *sql.DB
	path string
	log  *logging.Logger
	now  func() time.Time
}

// Verify Storage implements domain.SessionStore
var _ domain.SessionStore = (*Storage)(nil)

// Option configures Storage.
type Option func(*Storage)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Storage) { s.log = l.Named("sqlitestore") }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

func New(dbPath string, opts ...Option) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so concurrent
	// read-modify-write transactions serialize instead of failing late.
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Storage{
		db:   db,
		path: dbPath,
		log:  logging.New("sqlitestore"),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_accessed INTEGER NOT NULL,
		record TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_accessed ON sessions(last_accessed DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file.
func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Session operations

func (s *Storage) Create(ctx context.Context, workingDirectory, parentID string) (*domain.Session, error) {
	sess := store.NewSession(workingDirectory, parentID)
	now := s.now()
	sess.Created = now
	sess.LastAccessed = now
	sess.Version = 1

	record, err := encode(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, parent_id, version, created_at, last_accessed, record)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, nullable(sess.ParentSessionID), sess.Version, sess.Created.UnixNano(), sess.LastAccessed.UnixNano(), record)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, fmt.Errorf("create session: %w: %s", store.ErrAlreadyExists, sess.ID)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("session_created", map[string]interface{}{
		"id":        sess.ID,
		"sub_agent": domain.Deref(sess.SubAgentID),
	})
	return sess, nil
}

func (s *Storage) GetAndTouch(ctx context.Context, id string) (*domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sess, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	sess.LastAccessed = s.later(sess.LastAccessed)
	sess.Version++
	if err := s.update(ctx, tx, sess, sess.Version-1); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

func (s *Storage) Peek(ctx context.Context, id string) (*domain.Session, error) {
	return s.load(ctx, s.db, id)
}

func (s *Storage) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record FROM sessions ORDER BY last_accessed DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, err
		}

		sess, err := s.decode(id, record)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The column and the document agree, but sort on the decoded value so
	// every backend orders identically.
	store.SortByLastAccessed(sessions)
	return sessions, nil
}

func (s *Storage) Save(ctx context.Context, sess *domain.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	var lastAccessed int64
	err = tx.QueryRowContext(ctx, `SELECT version, last_accessed FROM sessions WHERE id = ?`, sess.ID).Scan(&current, &lastAccessed)
	if err == sql.ErrNoRows {
		return store.NewNotFoundError("session", sess.ID)
	}
	if err != nil {
		return fmt.Errorf("load version: %w", err)
	}
	if current != sess.Version {
		return &store.ConflictError{ID: sess.ID, Expected: sess.Version, Actual: current}
	}

	next := sess.Clone()
	next.LastAccessed = s.later(time.Unix(0, lastAccessed).UTC())
	next.Version = current + 1
	if err := s.update(ctx, tx, next, current); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	sess.LastAccessed = next.LastAccessed
	sess.Version = next.Version
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.Info("delete_missing", map[string]interface{}{"id": id})
	} else {
		s.log.Info("session_deleted", map[string]interface{}{"id": id})
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Storage) load(ctx context.Context, q querier, id string) (*domain.Session, error) {
	var record string
	err := q.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, store.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return s.decode(id, record)
}

// update writes sess guarded by the version it is replacing.
func (s *Storage) update(ctx context.Context, tx *sql.Tx, sess *domain.Session, expected uint64) error {
	record, err := encode(sess)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET version = ?, last_accessed = ?, record = ?
		WHERE id = ? AND version = ?
	`, sess.Version, sess.LastAccessed.UnixNano(), record, sess.ID, expected)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &store.ConflictError{ID: sess.ID, Expected: expected}
	}
	return nil
}

func (s *Storage) decode(id, record string) (*domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal([]byte(record), &sess); err != nil {
		s.log.Warn("corrupt_record", map[string]interface{}{"id": id}, err)
		return nil, &store.CorruptError{ID: id, Err: err}
	}
	if sess.ID == "" {
		sess.ID = id
	}
	sess.Normalize()
	return &sess, nil
}

func (s *Storage) later(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func encode(sess *domain.Session) (string, error) {
	sess.Normalize()
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	return string(data), nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
