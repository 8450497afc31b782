package llmhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/llmclient"
	"github.com/agentforge/runtime/internal/observability"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// Config holds the per-agent LLM configuration spec.md §4.5 step 1
// references: model, preamble, tool definitions, temperature, max-tokens.
type Config struct {
	Model       string
	System      string
	Tools       []llmclient.ToolDefinition
	Temperature float64
	MaxTokens   int
	Retry       RetryPolicy
}

// Handler subscribes to UserCompletion and ToolResults envelopes on any
// agent aggregate and drives them to a PutCompletion command.
type Handler struct {
	Provider llmclient.Provider
	Config   Config
	Logger   *observability.Logger
	Events   *observability.EventRecorder
}

// New builds an LLM EventHandler. A nil logger falls back to a no-op
// logger so callers in tests don't need to construct one. A nil events
// recorder disables timeline recording.
func New(provider llmclient.Provider, cfg Config, logger *observability.Logger, events *observability.EventRecorder) *Handler {
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = observability.NoopLogger()
	}
	return &Handler{Provider: provider, Config: cfg, Logger: logger, Events: events}
}

var _ runtime.EventHandler = (*Handler)(nil)

// Process implements runtime.EventHandler: on UserCompletion/ToolResults
// it builds a completion request from the folded conversation, retries
// the provider call, and issues PutCompletion through h.
func (h *Handler) Process(ctx context.Context, rt *runtime.Handler, env eventsourcing.Envelope, event aggregate.Event) error {
	switch event.(type) {
	case aggregate.UserCompletionEvent, aggregate.ToolResultsEvent:
		// continue below
	default:
		return nil
	}

	ctx = observability.AddAggregateID(ctx, env.AggregateID)

	state, _, err := rt.Load(ctx, env.AggregateID)
	if err != nil {
		return fmt.Errorf("llmhandler: load %s: %w", env.AggregateID, err)
	}

	req := h.buildRequest(state)

	runID := fmt.Sprintf("%s@%d", env.AggregateID, env.Sequence)
	h.Events.RecordRunStart(ctx, runID, map[string]interface{}{"model": h.Config.Model})
	start := time.Now()

	resp, result, err := WithRetry(ctx, h.Config.Retry, func(attempt int) (aggregate.CompletionResponse, error) {
		h.Logger.Debug(ctx, "llm completion attempt",
			"aggregate_id", env.AggregateID,
			"attempt", attempt)
		return h.Provider.Complete(ctx, req)
	})
	h.Events.RecordRunEnd(observability.AddRunID(ctx, runID), time.Since(start), err)
	if err != nil {
		h.Logger.Error(ctx, "llm completion exhausted retries",
			"aggregate_id", env.AggregateID,
			"attempts", result.Attempts,
			"error", err)
		return fmt.Errorf("llmhandler: complete after %d attempts: %w", result.Attempts, err)
	}

	_, err = rt.Execute(ctx, env.AggregateID, aggregate.PutCompletion{Response: resp}, eventsourcing.Metadata{
		CorrelationID: env.Metadata.CorrelationID,
		CausationID:   fmt.Sprintf("%s/%s@%d", env.AggregateType, env.AggregateID, env.Sequence),
	})
	if err != nil {
		return fmt.Errorf("llmhandler: put completion: %w", err)
	}
	return nil
}

// buildRequest folds the conversation's turns into provider messages,
// the full message history referenced by spec.md §4.5 step 1.
func (h *Handler) buildRequest(state *aggregate.AgentState) llmclient.CompletionRequest {
	messages := make([]llmclient.Message, 0, len(state.Messages))
	for _, t := range state.Messages {
		messages = append(messages, llmclient.Message{Role: t.Role, Content: t.Content, ToolCalls: t.ToolCalls})
	}
	return llmclient.CompletionRequest{
		Model:       h.Config.Model,
		System:      h.Config.System,
		Messages:    messages,
		Tools:       h.Config.Tools,
		Temperature: h.Config.Temperature,
		MaxTokens:   h.Config.MaxTokens,
	}
}
