// Package session enforces session and sub-agent lifecycle rules on top of a
// domain.SessionStore. Manager is the only component that mutates sessions.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/store"
)

// MaxConflictRetries is how many times a mutation is re-applied to a fresh
// copy after losing a version race.
const MaxConflictRetries = 3

// CreateOptions configures a new session.
type CreateOptions struct {
	// WorkingDirectory anchors the session. Empty means the process cwd.
	WorkingDirectory string
	// ParentID makes the new session a sub-agent of an existing session.
	ParentID string
}

// Manager handles session lifecycle
type Manager struct {
	store   domain.SessionStore
	log     *logging.Logger
	now     func() time.Time
	retries int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.log = l.Named("session") }
}

// WithClock overrides the turn timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithConflictRetries overrides MaxConflictRetries.
func WithConflictRetries(n int) Option {
	return func(m *Manager) { m.retries = n }
}

// NewManager creates a Manager with the given storage (accepts interface)
func NewManager(s domain.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		log:     logging.New("session"),
		now:     func() time.Time { return time.Now().UTC() },
		retries: MaxConflictRetries,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() domain.SessionStore {
	return m.store
}

// CreateSession creates a top-level session, or a sub-agent when
// opts.ParentID is set. The parent must exist at creation time.
func (m *Manager) CreateSession(ctx context.Context, opts CreateOptions) (*domain.Session, error) {
	if opts.ParentID != "" {
		if _, err := m.store.Peek(ctx, opts.ParentID); err != nil {
			return nil, fmt.Errorf("get parent: %w", err)
		}
	}

	sess, err := m.store.Create(ctx, opts.WorkingDirectory, opts.ParentID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session and records the access (see
// domain.SessionStore.GetAndTouch).
func (m *Manager) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return m.store.GetAndTouch(ctx, id)
}

// ListSessions returns every session, most recently accessed first.
func (m *Manager) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	return m.store.List(ctx)
}

// DeleteSession removes a session. Sub-agents of the session are kept.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// SubAgents returns the sessions spawned from parentID.
func (m *Manager) SubAgents(ctx context.Context, parentID string) ([]*domain.Session, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var subs []*domain.Session
	for _, s := range all {
		if domain.Deref(s.ParentSessionID) == parentID {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

// AddConversationTurn appends one turn to the end of a session's history and
// returns the updated session. A missing session is reported as NotFound; it
// is never created implicitly.
func (m *Manager) AddConversationTurn(ctx context.Context, id string, role domain.Role, content string, metadata map[string]any) (*domain.Session, error) {
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}

	// Store the metadata in the shape every later read returns it.
	meta, err := domain.PortableMetadata(metadata)
	if err != nil {
		return nil, &ValidationError{Field: "metadata", Reason: err.Error()}
	}

	turn := domain.ConversationTurn{
		ID:        ulid.Make().String(),
		Timestamp: m.now(),
		Role:      role,
		Content:   content,
		Metadata:  meta,
	}

	return m.update(ctx, id, "add_turn", func(s *domain.Session) error {
		s.Conversation = append(s.Conversation, turn)
		return nil
	})
}

// ClearConversation empties a session's history.
func (m *Manager) ClearConversation(ctx context.Context, id string) (*domain.Session, error) {
	return m.update(ctx, id, "clear", func(s *domain.Session) error {
		s.Conversation = []domain.ConversationTurn{}
		return nil
	})
}

// SetWorkingDirectory re-anchors a session. dir is stored as given; callers
// resolve and validate it first.
func (m *Manager) SetWorkingDirectory(ctx context.Context, id, dir string) (*domain.Session, error) {
	if dir == "" {
		return nil, &ValidationError{Field: "workingDirectory", Reason: "must not be empty"}
	}
	return m.update(ctx, id, "set_working_directory", func(s *domain.Session) error {
		s.WorkingDirectory = dir
		return nil
	})
}

// update loads a fresh copy, applies mutate and saves it. When another
// writer got there first the mutation is re-applied to the newer copy.
func (m *Manager) update(ctx context.Context, id, op string, mutate func(*domain.Session) error) (*domain.Session, error) {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		sess, err := m.store.Peek(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(sess); err != nil {
			return nil, err
		}

		err = m.store.Save(ctx, sess)
		if err == nil {
			m.log.WithSession(id).TimedEvent(op, start, map[string]interface{}{
				"attempts": attempt + 1,
				"turns":    sess.TurnCount(),
			})
			return sess, nil
		}
		if !store.IsConflict(err) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
		m.log.WithSession(id).Warn("save_conflict", map[string]interface{}{
			"op":      op,
			"attempt": attempt + 1,
		}, err)
	}
	return nil, fmt.Errorf("%s: %w", op, lastErr)
}
