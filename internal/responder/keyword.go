// Package responder implements domain.Responder: an offline keyword
// responder plus adapters for hosted models.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/joss/agentsh/internal/domain"
)

// rule maps trigger words to a canned reply.
type rule struct {
	intent   string
	keywords []string
	reply    string
}

var keywordRules = []rule{
	{
		intent:   "greeting",
		keywords: []string{"hello", "hi", "hey", "hola"},
		reply:    "Hello! What are we working on today?",
	},
	{
		intent:   "help",
		keywords: []string{"help", "how do i", "what can you"},
		reply:    "I can keep notes for this session and answer questions. Type /help to see the shell commands.",
	},
	{
		intent:   "error",
		keywords: []string{"error", "bug", "panic", "fail", "crash"},
		reply:    "Paste the full error output and the command that produced it, and we can work through it.",
	},
	{
		intent:   "code",
		keywords: []string{"code", "function", "refactor", "implement", "test"},
		reply:    "Share the file or snippet you want to change and describe the behaviour you expect.",
	},
}

// Keyword is an offline responder that picks a canned reply by keyword.
// It needs no network access and always answers the same input the same way.
type Keyword struct{}

// Verify Keyword implements domain.Responder
var _ domain.Responder = Keyword{}

// NewKeyword creates a keyword responder.
func NewKeyword() Keyword {
	return Keyword{}
}

// Name returns the responder name.
func (Keyword) Name() string { return string(TypeKeyword) }

// Respond matches the message against the keyword rules.
func (Keyword) Respond(ctx context.Context, req domain.ResponseRequest) (domain.Reply, error) {
	if err := ctx.Err(); err != nil {
		return domain.Reply{}, err
	}

	words := tokenize(req.Message)
	lower := strings.ToLower(req.Message)
	for _, r := range keywordRules {
		if matches(r.keywords, words, lower) {
			return domain.Reply{
				Text:     r.reply,
				Metadata: map[string]any{"responder": string(TypeKeyword), "intent": r.intent},
			}, nil
		}
	}

	return domain.Reply{
		Text: fmt.Sprintf("Noted (%d earlier turns in this session): %s", len(req.History), req.Message),
		Metadata: map[string]any{
			"responder": string(TypeKeyword),
			"intent":    "echo",
		},
	}, nil
}

// matches reports whether any keyword appears as a whole word, or as a
// phrase for multi-word keywords.
func matches(keywords []string, words map[string]bool, lower string) bool {
	for _, k := range keywords {
		if strings.Contains(k, " ") {
			if strings.Contains(lower, k) {
				return true
			}
			continue
		}
		if words[k] {
			return true
		}
	}
	return false
}

func tokenize(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		words[w] = true
	}
	return words
}
