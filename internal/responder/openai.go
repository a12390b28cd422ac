package responder

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/joss/agentsh/internal/domain"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.ChatModelGPT4oMini

// OpenAI answers through the OpenAI Chat Completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// Verify OpenAI implements domain.Responder
var _ domain.Responder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI responder. Empty fields fall back to the SDK
// defaults (OPENAI_API_KEY, public endpoint) and DefaultOpenAIModel.
func NewOpenAI(cfg Config) *OpenAI {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := DefaultOpenAIModel
	if cfg.Model != "" {
		model = cfg.Model
	}
	return &OpenAI{client: &client, model: model, maxTokens: cfg.maxTokens()}
}

// Name returns the responder name.
func (o *OpenAI) Name() string { return string(TypeOpenAI) }

// Respond sends the history plus the new message and returns the first
// choice.
func (o *OpenAI) Respond(ctx context.Context, req domain.ResponseRequest) (domain.Reply, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               o.model,
		Messages:            openaiMessages(req),
		MaxCompletionTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return domain.Reply{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Reply{}, fmt.Errorf("openai api error: no choices returned")
	}

	ch0 := resp.Choices[0]
	return domain.Reply{
		Text: ch0.Message.Content,
		Metadata: map[string]any{
			"responder":     string(TypeOpenAI),
			"model":         resp.Model,
			"finish_reason": ch0.FinishReason,
			"input_tokens":  resp.Usage.PromptTokens,
			"output_tokens": resp.Usage.CompletionTokens,
		},
	}, nil
}

func openaiMessages(req domain.ResponseRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(turn.Content))
		case domain.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	return append(messages, openai.UserMessage(req.Message))
}
