package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/eventlog"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

func newTestHandler() *Handler {
	store := eventlog.NewMemoryStore()
	return NewHandler(store, aggregate.AggregateType, func() aggregate.Extension {
		return aggregate.NoopExtension{TypeName: "test"}
	}, nil)
}

func TestHandler_ExecutePersistsAndLoadsBack(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	envs, err := h.Execute(ctx, "a1", aggregate.PutUserMessage{Content: "print hello"}, eventsourcing.Metadata{})
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "agent.user_completion", envs[0].EventType)

	state, seq, err := h.Load(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "print hello", state.Messages[0].Content)
}

func TestHandler_ExecuteRejectsNotReady(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	resp := aggregate.CompletionResponse{ToolCalls: []aggregate.ToolCall{{ID: "c1", Name: "bash"}}}
	_, err := h.Execute(ctx, "a1", aggregate.PutCompletion{Response: resp}, eventsourcing.Metadata{})
	require.NoError(t, err)

	_, err = h.Execute(ctx, "a1", aggregate.PutUserMessage{Content: "again"}, eventsourcing.Metadata{})
	require.Error(t, err)

	var agentErr *aggregate.Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, aggregate.ErrKindNotReady, agentErr.Kind)
}

func TestHandler_FullTurnRoundTrip(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	_, err := h.Execute(ctx, "a1", aggregate.PutUserMessage{Content: "print hello"}, eventsourcing.Metadata{})
	require.NoError(t, err)

	resp := aggregate.CompletionResponse{
		ToolCalls: []aggregate.ToolCall{{ID: "c1", Name: "write_file"}, {ID: "c2", Name: "bash"}},
	}
	envs, err := h.Execute(ctx, "a1", aggregate.PutCompletion{Response: resp}, eventsourcing.Metadata{})
	require.NoError(t, err)
	require.Len(t, envs, 2)

	envs, err = h.Execute(ctx, "a1", aggregate.PutToolResults{Results: []aggregate.ToolResult{
		{ToolCallID: "c1", Content: "ok"},
		{ToolCallID: "c2", Content: "hello\n"},
	}}, eventsourcing.Metadata{})
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, "agent.tool_results", envs[0].EventType)
	assert.Equal(t, "agent.user_completion", envs[1].EventType)

	state, _, err := h.Load(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, state.AllToolsReady())
}
