package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentforge/runtime/internal/aggregate"
)

// BedrockProvider wraps the Bedrock Converse API, letting the runtime
// reach Anthropic/Meta/Amazon models through an AWS-managed endpoint
// without a separate SDK per model family.
type BedrockProvider struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockProvider builds a provider over an already-configured
// bedrockruntime client (see internal/config for credential wiring via
// aws-sdk-go-v2/config).
func NewBedrockProvider(client *bedrockruntime.Client, modelID string) *BedrockProvider {
	return &BedrockProvider{client: client, modelID: modelID}
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (aggregate.CompletionResponse, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = p.modelID
	}

	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == aggregate.TurnAssistant {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	var system []types.SystemContentBlock
	if req.System != "" {
		system = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}

	toolConfig := buildToolConfig(req.Tools)

	maxTokens := int32(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	out, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:    aws.String(modelID),
		Messages:   messages,
		System:     system,
		ToolConfig: toolConfig,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(maxTokens),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	})
	if err != nil {
		return aggregate.CompletionResponse{}, fmt.Errorf("bedrock: converse: %w", err)
	}

	var text string
	var calls []aggregate.ToolCall
	if msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			switch v := block.(type) {
			case *types.ContentBlockMemberText:
				text += v.Value
			case *types.ContentBlockMemberToolUse:
				args, _ := json.Marshal(v.Value.Input)
				calls = append(calls, aggregate.ToolCall{
					ID:        aws.ToString(v.Value.ToolUseId),
					Name:      aws.ToString(v.Value.Name),
					Arguments: args,
				})
			}
		}
	}

	var outputTokens int
	if out.Usage != nil {
		outputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}

	return aggregate.CompletionResponse{
		Text:         text,
		ToolCalls:    calls,
		FinishReason: normalizeFinishReason(string(out.StopReason), []string{"end_turn", "stop_sequence"}, []string{"max_tokens"}, []string{"tool_use"}),
		OutputTokens: outputTokens,
	}, nil
}

func buildToolConfig(tools []ToolDefinition) *types.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schemaDoc map[string]interface{}
		_ = json.Unmarshal(t.Schema, &schemaDoc)
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document(schemaDoc)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

// document adapts a decoded JSON schema map into the smithy document type
// the Bedrock SDK expects for ToolInputSchema.
func document(v map[string]interface{}) smithyDocument {
	return smithyDocument{v: v}
}

type smithyDocument struct{ v map[string]interface{} }

func (d smithyDocument) MarshalSmithyDocument() ([]byte, error) {
	return json.Marshal(d.v)
}

func (d smithyDocument) UnmarshalSmithyDocument(b []byte) error {
	return json.Unmarshal(b, &d.v)
}
