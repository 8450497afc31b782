package llmclient

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentforge/runtime/internal/aggregate"
)

// AnthropicProvider wraps the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider builds a provider for the given API key and
// default model (used when a request doesn't override it).
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client, model: model}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (aggregate.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case aggregate.TurnUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case aggregate.TurnAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, anthropic.ToolUnionParamOfTool(
			anthropic.ToolInputSchemaParam{},
			t.Name,
		))
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return aggregate.CompletionResponse{}, fmt.Errorf("anthropic: complete: %w", err)
	}

	var text string
	var calls []aggregate.ToolCall
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += v.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, aggregate.ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: []byte(v.JSON.Input.Raw()),
			})
		}
	}

	return aggregate.CompletionResponse{
		Text:         text,
		ToolCalls:    calls,
		FinishReason: normalizeFinishReason(string(resp.StopReason), []string{"end_turn"}, []string{"max_tokens"}, []string{"tool_use"}),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
