// Package graphstore persists sessions as nodes in a bolt graph database
// (Memgraph or Neo4j). Each session is a (:Session:Agentsh) node holding the
// JSON record plus the indexed fields queries need; sub-agents hang off their
// parent through a SPAWNED relationship.
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/graph"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/store"
)

const (
	createQuery = `
		CREATE (s:Session:Agentsh {
			id: $id,
			parentId: $parentId,
			version: $version,
			lastAccessed: $lastAccessed,
			record: $record
		})
	`

	linkQuery = `
		MATCH (p:Session:Agentsh {id: $parentId}), (c:Session:Agentsh {id: $id})
		MERGE (p)-[:SPAWNED]->(c)
	`

	getQuery = `
		MATCH (s:Session:Agentsh {id: $id})
		RETURN s.id as id, s.version as version, s.record as record
	`

	listQuery = `
		MATCH (s:Session:Agentsh)
		RETURN s.id as id, s.version as version, s.record as record
		ORDER BY s.lastAccessed DESC
	`

	// updateQuery only matches while the stored version equals $expected.
	updateQuery = `
		MATCH (s:Session:Agentsh {id: $id})
		WHERE s.version = $expected
		SET s.version = $version,
		    s.lastAccessed = $lastAccessed,
		    s.record = $record
		RETURN s.version as version
	`

	deleteQuery = `
		MATCH (s:Session:Agentsh {id: $id})
		DETACH DELETE s
		RETURN count(s) as deleted
	`
)

// touchAttempts bounds how often GetAndTouch retries a racing writer.
const touchAttempts = 3

// Store implements domain.SessionStore on a graph.Driver.
type Store struct {
	db  graph.Driver
	log *logging.Logger
	now func() time.Time
}

// Verify Store implements domain.SessionStore
var _ domain.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.log = l.Named("graphstore") }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a graph-backed store. The store owns db and closes it on Close.
func New(db graph.Driver, opts ...Option) *Store {
	s := &Store{
		db:  db,
		log: logging.New("graphstore"),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds and persists a new session.
func (s *Store) Create(ctx context.Context, workingDirectory, parentID string) (*domain.Session, error) {
	sess := store.NewSession(workingDirectory, parentID)
	now := s.now()
	sess.Created = now
	sess.LastAccessed = now
	sess.Version = 1

	record, err := encode(sess)
	if err != nil {
		return nil, err
	}
	err = s.db.ExecuteWrite(ctx, createQuery, map[string]any{
		"id":           sess.ID,
		"parentId":     parentID,
		"version":      int64(sess.Version),
		"lastAccessed": sess.LastAccessed.UnixNano(),
		"record":       record,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if parentID != "" {
		// A missing parent simply leaves the child unlinked.
		if err := s.db.ExecuteWrite(ctx, linkQuery, map[string]any{"id": sess.ID, "parentId": parentID}); err != nil {
			s.log.Warn("link_failed", map[string]interface{}{"id": sess.ID, "parent": parentID}, err)
		}
	}

	s.log.Info("session_created", map[string]interface{}{
		"id":        sess.ID,
		"sub_agent": domain.Deref(sess.SubAgentID),
	})
	return sess, nil
}

// GetAndTouch loads a session and persists a fresh LastAccessed before
// returning it.
func (s *Store) GetAndTouch(ctx context.Context, id string) (*domain.Session, error) {
	var lastErr error
	for attempt := 0; attempt < touchAttempts; attempt++ {
		sess, err := s.Peek(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.Save(ctx, sess); err != nil {
			if store.IsConflict(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return sess, nil
	}
	return nil, lastErr
}

// Peek loads a session without touching it.
func (s *Store) Peek(ctx context.Context, id string) (*domain.Session, error) {
	records, err := s.db.Execute(ctx, getQuery, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, store.NewNotFoundError("session", id)
	}
	return s.decode(records[0])
}

// List loads every session, most recently accessed first. Nodes whose record
// fails to decode are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	records, err := s.db.Execute(ctx, listQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(records))
	for _, r := range records {
		sess, err := s.decode(r)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	store.SortByLastAccessed(sessions)
	return sessions, nil
}

// Save replaces the stored record if its version still matches sess.Version.
func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	current, err := s.Peek(ctx, sess.ID)
	if err != nil {
		return err
	}
	if current.Version != sess.Version {
		return &store.ConflictError{ID: sess.ID, Expected: sess.Version, Actual: current.Version}
	}

	next := sess.Clone()
	next.LastAccessed = later(s.now(), current.LastAccessed)
	next.Version = current.Version + 1
	record, err := encode(next)
	if err != nil {
		return err
	}

	rows, err := s.db.ExecuteWriteReturning(ctx, updateQuery, map[string]any{
		"id":           sess.ID,
		"expected":     int64(sess.Version),
		"version":      int64(next.Version),
		"lastAccessed": next.LastAccessed.UnixNano(),
		"record":       record,
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	if len(rows) == 0 {
		// Someone else advanced the version between Peek and the update.
		return &store.ConflictError{ID: sess.ID, Expected: sess.Version}
	}

	sess.LastAccessed = next.LastAccessed
	sess.Version = next.Version
	return nil
}

// Delete removes a session node. Unknown ids are logged and ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	rows, err := s.db.ExecuteWriteReturning(ctx, deleteQuery, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if len(rows) == 0 || graph.GetInt64(rows[0], "deleted") == 0 {
		s.log.Info("delete_missing", map[string]interface{}{"id": id})
		return nil
	}
	s.log.Info("session_deleted", map[string]interface{}{"id": id})
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the driver.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) decode(r graph.Record) (*domain.Session, error) {
	id := graph.GetString(r, "id")
	var sess domain.Session
	if err := json.Unmarshal([]byte(graph.GetString(r, "record")), &sess); err != nil {
		s.log.Warn("corrupt_record", map[string]interface{}{"id": id}, err)
		return nil, &store.CorruptError{ID: id, Err: err}
	}
	if sess.ID == "" {
		sess.ID = id
	}
	sess.Version = uint64(graph.GetInt64(r, "version"))
	sess.Normalize()
	return &sess, nil
}

func encode(sess *domain.Session) (string, error) {
	sess.Normalize()
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	return string(data), nil
}

func later(now, prev time.Time) time.Time {
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}
