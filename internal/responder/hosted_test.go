package responder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentsh/internal/domain"
)

var history = []domain.ConversationTurn{
	{Role: domain.RoleSystem, Content: "be brief"},
	{Role: domain.RoleUser, Content: "hi"},
	{Role: domain.RoleAssistant, Content: "hello"},
}

// captureServer replies with body and records the decoded request.
func captureServer(t *testing.T, body string) (*httptest.Server, *map[string]any, *string) {
	t.Helper()
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &path
}

func TestAnthropicRespond(t *testing.T) {
	srv, got, path := captureServer(t, `{
		"id": "msg_1", "type": "message", "role": "assistant",
		"model": "claude-test",
		"content": [{"type": "text", "text": "Sure."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 12, "output_tokens": 3}
	}`)

	a := NewAnthropic(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test"})
	assert.Equal(t, "anthropic", a.Name())

	reply, err := a.Respond(context.Background(), domain.ResponseRequest{
		Message: "next", SessionID: "s1", History: history,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure.", reply.Text)
	assert.Equal(t, "claude-test", reply.Metadata["model"])
	assert.Equal(t, int64(12), reply.Metadata["input_tokens"])

	assert.Equal(t, "/v1/messages", *path)
	assert.Equal(t, "claude-test", (*got)["model"])
	messages := (*got)["messages"].([]any)
	// System turns travel in the system field, not as messages.
	assert.Len(t, messages, 3)
	assert.NotNil(t, (*got)["system"])
}

func TestOpenAIRespond(t *testing.T) {
	srv, got, path := captureServer(t, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1,
		"model": "gpt-test",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "Done."}}],
		"usage": {"prompt_tokens": 9, "completion_tokens": 2, "total_tokens": 11}
	}`)

	o := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Model: "gpt-test"})
	assert.Equal(t, "openai", o.Name())

	reply, err := o.Respond(context.Background(), domain.ResponseRequest{
		Message: "next", SessionID: "s1", History: history,
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", reply.Text)
	assert.Equal(t, "gpt-test", reply.Metadata["model"])
	assert.Equal(t, int64(9), reply.Metadata["input_tokens"])

	assert.Equal(t, "/v1/chat/completions", *path)
	messages := (*got)["messages"].([]any)
	assert.Len(t, messages, 4)
}

func TestOpenAINoChoices(t *testing.T) {
	srv, _, _ := captureServer(t, `{"id": "x", "object": "chat.completion", "model": "m", "choices": []}`)

	o := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	_, err := o.Respond(context.Background(), domain.ResponseRequest{Message: "hi"})
	assert.Error(t, err)
}
