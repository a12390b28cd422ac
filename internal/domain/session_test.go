package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "assistant", "system"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, Role(s), r)
	}

	_, err := ParseRole("robot")
	assert.Error(t, err)
}

func TestLastTurns(t *testing.T) {
	s := &Session{}
	for i := 0; i < 5; i++ {
		s.Conversation = append(s.Conversation, ConversationTurn{ID: string(rune('a' + i))})
	}

	assert.Len(t, s.LastTurns(10), 5)
	last := s.LastTurns(2)
	require.Len(t, last, 2)
	assert.Equal(t, "d", last[0].ID)
	assert.Equal(t, "e", last[1].ID)
	assert.Len(t, s.LastTurns(0), 5)
}

func TestCloneIsDeep(t *testing.T) {
	s := &Session{
		ID:              "s1",
		Conversation:    []ConversationTurn{{ID: "t1", Metadata: map[string]any{"k": "v"}}},
		Context:         map[string]any{"a": 1},
		SubAgentID:      StringPtr("sub-00000000"),
		ParentSessionID: StringPtr("p1"),
	}

	c := s.Clone()
	c.Conversation[0].Metadata["k"] = "changed"
	c.Conversation = append(c.Conversation, ConversationTurn{ID: "t2"})
	c.Context["a"] = 2
	*c.SubAgentID = "sub-11111111"

	assert.Equal(t, "v", s.Conversation[0].Metadata["k"])
	assert.Len(t, s.Conversation, 1)
	assert.Equal(t, 1, s.Context["a"])
	assert.Equal(t, "sub-00000000", *s.SubAgentID)
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestJSONFieldNames(t *testing.T) {
	s := &Session{ID: "s1"}
	s.Normalize()

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "created", "lastAccessed", "workingDirectory", "conversation", "context", "version"} {
		assert.Contains(t, raw, key)
	}
	// Top-level sessions omit the sub-agent fields.
	assert.NotContains(t, raw, "subAgentId")
	assert.NotContains(t, raw, "parentSessionId")
}

func TestDeref(t *testing.T) {
	assert.Equal(t, "", Deref(nil))
	assert.Equal(t, "x", Deref(StringPtr("x")))
	assert.False(t, (&Session{}).IsSubAgent())
	assert.True(t, (&Session{SubAgentID: StringPtr("sub-1")}).IsSubAgent())
}

func TestPortableMetadata(t *testing.T) {
	got, err := PortableMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)

	got, err = PortableMetadata(map[string]any{
		"tokens": int64(7),
		"tags":   []string{"a"},
		"nested": struct {
			N int `json:"n"`
		}{N: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"tokens": float64(7),
		"tags":   []any{"a"},
		"nested": map[string]any{"n": float64(1)},
	}, got)

	_, err = PortableMetadata(map[string]any{"f": func() {}})
	assert.Error(t, err)
}
