// Package filestore persists sessions as one JSON document per session in a
// directory. Every read goes to disk; nothing is cached between calls.
//
// Writers take an exclusive advisory lock on <id>.lock for the duration of a
// read-modify-write and compare the record's version before replacing it, so
// several processes can share one directory without losing updates.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/store"
)

const (
	recordExt = ".json"
	lockExt   = ".lock"
)

// Store implements domain.SessionStore on the local file system.
type Store struct {
	dir    string
	log    *logging.Logger
	now    func() time.Time
	closed atomic.Bool
}

// Verify Store implements domain.SessionStore
var _ domain.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.log = l.Named("filestore") }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens (creating if needed) a session directory.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	s := &Store{
		dir: dir,
		log: logging.New("filestore"),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory holding the records.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.dir, id+lockExt)
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return ctx.Err()
}

// Create builds and persists a new session.
func (s *Store) Create(ctx context.Context, workingDirectory, parentID string) (*domain.Session, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	sess := store.NewSession(workingDirectory, parentID)
	now := s.now()
	sess.Created = now
	sess.LastAccessed = now
	sess.Version = 1

	err := s.withLock(sess.ID, func() error {
		if _, err := os.Stat(s.recordPath(sess.ID)); err == nil {
			return fmt.Errorf("%w: session %s", store.ErrAlreadyExists, sess.ID)
		}
		return s.write(sess)
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("session_created", map[string]interface{}{
		"id":        sess.ID,
		"sub_agent": domain.Deref(sess.SubAgentID),
	})
	return sess, nil
}

// GetAndTouch loads a session and persists a fresh LastAccessed before
// returning it. The bump also advances the record's version.
func (s *Store) GetAndTouch(ctx context.Context, id string) (*domain.Session, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := store.ValidID(id); err != nil {
		return nil, store.NewNotFoundError("session", id)
	}

	var sess *domain.Session
	err := s.withLock(id, func() error {
		loaded, err := s.read(id)
		if err != nil {
			return err
		}
		loaded.LastAccessed = s.later(loaded.LastAccessed)
		loaded.Version++
		if err := s.write(loaded); err != nil {
			return err
		}
		sess = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Peek loads a session without touching it.
func (s *Store) Peek(ctx context.Context, id string) (*domain.Session, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := store.ValidID(id); err != nil {
		return nil, store.NewNotFoundError("session", id)
	}
	return s.read(id)
}

// Save replaces the stored record if its version still matches sess.Version.
func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := store.ValidID(sess.ID); err != nil {
		return err
	}

	return s.withLock(sess.ID, func() error {
		current, err := s.read(sess.ID)
		if err != nil {
			return err
		}
		if current.Version != sess.Version {
			return &store.ConflictError{ID: sess.ID, Expected: sess.Version, Actual: current.Version}
		}

		next := sess.Clone()
		next.LastAccessed = s.later(current.LastAccessed)
		next.Version = current.Version + 1
		if err := s.write(next); err != nil {
			return err
		}
		sess.LastAccessed = next.LastAccessed
		sess.Version = next.Version
		return nil
	})
}

// List loads every record in the directory. Records that fail to decode are
// logged and skipped.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	sessions := make([]*domain.Session, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		sess, err := s.read(id)
		if err != nil {
			// read already logged corrupt records
			if !store.IsNotFound(err) {
				s.log.Warn("list_skip", map[string]interface{}{"id": id}, err)
			}
			continue
		}
		sessions = append(sessions, sess)
	}

	store.SortByLastAccessed(sessions)
	return sessions, nil
}

// Delete removes a session record. Unknown ids are logged and ignored. The
// record's lock file is left in place.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := store.ValidID(id); err != nil {
		s.log.Info("delete_missing", map[string]interface{}{"id": id})
		return nil
	}

	return s.withLock(id, func() error {
		err := os.Remove(s.recordPath(id))
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Info("delete_missing", map[string]interface{}{"id": id})
			err = nil
		} else if err == nil {
			s.log.Info("session_deleted", map[string]interface{}{"id": id})
		}
		// The lock file stays: another writer may already be blocked on it.
		return err
	})
}

// Ping verifies the directory is still accessible.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := os.Stat(s.dir)
	return err
}

// Close marks the store closed. No handles are held between calls.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// later returns the current time, nudged forward if the clock has not moved
// past prev so LastAccessed never goes backwards.
func (s *Store) later(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func (s *Store) read(id string) (*domain.Session, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		cerr := &store.CorruptError{ID: id, Err: err}
		s.log.Warn("corrupt_record", map[string]interface{}{"id": id, "path": s.recordPath(id)}, err)
		return nil, cerr
	}
	if sess.ID == "" {
		sess.ID = id
	}
	sess.Normalize()
	return &sess, nil
}

// write replaces the record atomically: temp file in the same directory,
// fsync, rename.
func (s *Store) write(sess *domain.Session) error {
	sess.Normalize()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, sess.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session %s: %w", sess.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session %s: %w", sess.ID, err)
	}
	if err := os.Rename(tmpName, s.recordPath(sess.ID)); err != nil {
		return fmt.Errorf("replace session %s: %w", sess.ID, err)
	}
	return nil
}

// withLock runs fn while holding the record's exclusive advisory lock.
func (s *Store) withLock(id string, fn func() error) error {
	f, err := os.OpenFile(s.lockPath(id), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock %s: %w", id, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("lock %s: %w", id, err)
	}
	defer unlockFile(f)

	return fn()
}
