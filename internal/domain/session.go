// Package domain defines the core entities of agentsh: sessions, their
// conversation turns, and the contracts the rest of the system depends on.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q (want user, assistant or system)", s)
	}
	return r, nil
}

// ConversationTurn is one role-tagged entry in a session's history.
type ConversationTurn struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
}

// Session is one conversation context.
//
// Sessions are only mutated through session.Manager. Version is owned by the
// store: it is bumped on every successful save and used to reject writes
// based on a stale copy.
type Session struct {
	ID               string             `json:"id"`
	Created          time.Time          `json:"created"`
	LastAccessed     time.Time          `json:"lastAccessed"`
	WorkingDirectory string             `json:"workingDirectory"`
	Conversation     []ConversationTurn `json:"conversation"`
	Context          map[string]any     `json:"context"`
	SubAgentID       *string            `json:"subAgentId,omitempty"`
	ParentSessionID  *string            `json:"parentSessionId,omitempty"`
	Version          uint64             `json:"version"`
}

// IsSubAgent reports whether the session was spawned from a parent.
func (s *Session) IsSubAgent() bool {
	return s.SubAgentID != nil
}

// TurnCount returns the number of conversation turns.
func (s *Session) TurnCount() int {
	return len(s.Conversation)
}

// LastTurns returns up to n of the most recent turns in chronological order.
func (s *Session) LastTurns(n int) []ConversationTurn {
	if n <= 0 || len(s.Conversation) <= n {
		return s.Conversation
	}
	return s.Conversation[len(s.Conversation)-n:]
}

// Clone returns a deep copy so callers can mutate without aliasing the
// original conversation slice or maps.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Conversation = make([]ConversationTurn, len(s.Conversation))
	for i, t := range s.Conversation {
		t.Metadata = cloneMap(t.Metadata)
		c.Conversation[i] = t
	}
	c.Context = cloneMap(s.Context)
	if s.SubAgentID != nil {
		v := *s.SubAgentID
		c.SubAgentID = &v
	}
	if s.ParentSessionID != nil {
		v := *s.ParentSessionID
		c.ParentSessionID = &v
	}
	return &c
}

// Normalize replaces nil collections with empty ones so the persisted record
// always carries `conversation: []` and `context: {}`.
func (s *Session) Normalize() {
	if s.Conversation == nil {
		s.Conversation = []ConversationTurn{}
	}
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	for i := range s.Conversation {
		if s.Conversation[i].Metadata == nil {
			s.Conversation[i].Metadata = map[string]any{}
		}
	}
}

// PortableMetadata returns m as it reads back from a stored record: a JSON
// round trip turns integers into float64 and structs into maps. A nil map
// becomes an empty one.
func PortableMetadata(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StringPtr is a small helper for the optional id fields.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
