// Package llmclient implements the "out of scope" concrete LLM clients
// (spec.md §1/§6): narrow Provider implementations over the Anthropic,
// OpenAI, and Bedrock SDKs, plus a FailoverChain that tries providers in
// order so the LLM Handler (internal/llmhandler) can be configured with a
// primary and fallbacks.
//
// Grounded on the teacher's internal/agent.LLMProvider interface, reduced
// from streaming chunks to a single synchronous response since C5's retry
// wrapper (internal/llmhandler) needs an atomic success/failure per
// attempt, not an in-flight stream to resume.
package llmclient

import (
	"context"

	"github.com/agentforge/runtime/internal/aggregate"
)

// Message is one turn of conversation handed to a provider, the wire
// shape a CompletionRequest carries in Messages.
type Message struct {
	Role      aggregate.TurnRole  `json:"role"`
	Content   string              `json:"content,omitempty"`
	ToolCalls []aggregate.ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition describes one tool available to the model, translated
// from internal/tools.Registry entries.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      []byte `json:"schema"`
}

// CompletionRequest carries everything a provider needs to produce one
// aggregate.CompletionResponse.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// Provider is the narrow interface every concrete LLM client implements.
type Provider interface {
	// Name identifies the provider for logging, metrics, and circuit
	// breaker bookkeeping.
	Name() string

	// Complete issues one request and normalises the response, including
	// the finish reason, per spec.md §4.5 step 3.
	Complete(ctx context.Context, req CompletionRequest) (aggregate.CompletionResponse, error)
}

// normalizeFinishReason maps a provider-native stop reason string to the
// shared FinishReason alphabet.
func normalizeFinishReason(raw string, knownStop, knownMaxTokens, knownToolUse []string) aggregate.FinishReason {
	for _, s := range knownStop {
		if raw == s {
			return aggregate.FinishStop
		}
	}
	for _, s := range knownMaxTokens {
		if raw == s {
			return aggregate.FinishMaxTokens
		}
	}
	for _, s := range knownToolUse {
		if raw == s {
			return aggregate.FinishToolUse
		}
	}
	if raw == "" {
		return aggregate.FinishNone
	}
	return aggregate.FinishOther(raw)
}
