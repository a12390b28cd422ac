package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joss/agentsh/internal/domain"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = anthropic.ModelClaude3_5Sonnet20241022

// Anthropic answers through the Anthropic Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// Verify Anthropic implements domain.Responder
var _ domain.Responder = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic responder. Empty fields fall back to the
// SDK defaults (ANTHROPIC_API_KEY, public endpoint) and DefaultAnthropicModel.
func NewAnthropic(cfg Config) *Anthropic {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := DefaultAnthropicModel
	if cfg.Model != "" {
		model = anthropic.Model(cfg.Model)
	}
	return &Anthropic{client: &client, model: model, maxTokens: cfg.maxTokens()}
}

// Name returns the responder name.
func (a *Anthropic) Name() string { return string(TypeAnthropic) }

// Respond sends the history plus the new message and returns the text
// blocks of the reply.
func (a *Anthropic) Respond(ctx context.Context, req domain.ResponseRequest) (domain.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  anthropicMessages(req),
	}
	if system := anthropicSystem(req.History); len(system) > 0 {
		params.System = system
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return domain.Reply{
		Text: text.String(),
		Metadata: map[string]any{
			"responder":     string(TypeAnthropic),
			"model":         string(resp.Model),
			"stop_reason":   string(resp.StopReason),
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}

func anthropicMessages(req domain.ResponseRequest) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case domain.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case domain.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	return append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))
}

func anthropicSystem(history []domain.ConversationTurn) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, turn := range history {
		if turn.Role == domain.RoleSystem && turn.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: turn.Content})
		}
	}
	return blocks
}
