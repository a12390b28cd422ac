package responder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentsh/internal/domain"
)

func TestKeywordIntents(t *testing.T) {
	tests := []struct {
		message string
		intent  string
	}{
		{"hello there", "greeting"},
		{"Hi!", "greeting"},
		{"how do I run this", "help"},
		{"got a panic in main", "error"},
		{"please refactor this function", "code"},
		{"this is nothing special", "echo"},
		{"ship it", "echo"}, // "hi" inside a word does not count
	}

	k := NewKeyword()
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			reply, err := k.Respond(context.Background(), domain.ResponseRequest{Message: tt.message})
			require.NoError(t, err)
			assert.NotEmpty(t, reply.Text)
			assert.Equal(t, tt.intent, reply.Metadata["intent"])
			assert.Equal(t, "keyword", reply.Metadata["responder"])
		})
	}
}

func TestKeywordEchoMentionsHistory(t *testing.T) {
	reply, err := NewKeyword().Respond(context.Background(), domain.ResponseRequest{
		Message: "remember the milk",
		History: make([]domain.ConversationTurn, 3),
	})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "remember the milk")
	assert.Contains(t, reply.Text, "3 earlier turns")
}

func TestKeywordCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewKeyword().Respond(ctx, domain.ResponseRequest{Message: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
