package domain

import "context"

// SessionStore defines session persistence.
// This interface lives in domain so the manager and the backends depend on
// it rather than on each other.
type SessionStore interface {
	// Create allocates a fresh id, builds the session (with a sub-agent
	// token when parentID is non-empty), persists it and returns it.
	Create(ctx context.Context, workingDirectory, parentID string) (*Session, error)

	// GetAndTouch loads a session, bumps LastAccessed and persists the bump
	// before returning. Use Peek for a read without side effects.
	GetAndTouch(ctx context.Context, id string) (*Session, error)

	// Peek loads a session without modifying it.
	Peek(ctx context.Context, id string) (*Session, error)

	// List returns every readable session, most recently accessed first.
	// Corrupt records are skipped.
	List(ctx context.Context) ([]*Session, error)

	// Save writes the full record if its Version matches the stored one and
	// increments sess.Version on success.
	Save(ctx context.Context, sess *Session) error

	// Delete removes a session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}
