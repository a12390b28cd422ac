package domain

import "context"

// ResponseRequest is what a responder receives for one free-form message.
type ResponseRequest struct {
	Message   string
	SessionID string
	// History holds the turns recorded before Message, oldest first.
	History []ConversationTurn
}

// Reply is a responder's answer.
type Reply struct {
	Text     string
	Metadata map[string]any
}

// Responder produces reply text for free-form messages.
type Responder interface {
	Name() string
	Respond(ctx context.Context, req ResponseRequest) (Reply, error)
}
