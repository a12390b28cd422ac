// Package store provides the lifecycle contract and errors shared by every
// session backend.
package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joss/agentsh/internal/domain"
)

// Store is the minimal interface all stores must implement.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// Kind names a session backend.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindGraph  Kind = "graph"
)

// ParseKind validates a backend name. Empty selects the file backend.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindFile:
		return KindFile, nil
	case KindSQLite, KindGraph:
		return Kind(s), nil
	}
	return "", &UnknownKindError{Name: s}
}

// UnknownKindError is returned for an unsupported backend name.
type UnknownKindError struct {
	Name string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown session store %q (want file, sqlite or graph)", e.Name)
}

// SortByLastAccessed orders sessions most recently accessed first.
// Ties are broken by id so the order is stable across backends.
func SortByLastAccessed(sessions []*domain.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.After(b.LastAccessed)
		}
		return a.ID < b.ID
	})
}

// NewSession builds a fresh session record. A non-empty parentID marks it as
// a sub-agent and generates its token. An empty workingDirectory falls back
// to the process's current directory.
func NewSession(workingDirectory, parentID string) *domain.Session {
	if workingDirectory == "" {
		if cwd, err := os.Getwd(); err == nil {
			workingDirectory = cwd
		}
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		ID:               uuid.NewString(),
		Created:          now,
		LastAccessed:     now,
		WorkingDirectory: workingDirectory,
		Conversation:     []domain.ConversationTurn{},
		Context:          map[string]any{},
	}
	if parentID != "" {
		sess.SubAgentID = domain.StringPtr(NewSubAgentToken())
		sess.ParentSessionID = domain.StringPtr(parentID)
	}
	return sess
}

// NewSubAgentToken returns a short human-readable sub-agent token such as
// "sub-3f9a1c2e".
func NewSubAgentToken() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "sub-" + raw[:8]
}

// ValidID rejects ids that could escape a directory or break a file name.
func ValidID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
