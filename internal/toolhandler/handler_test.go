package toolhandler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/config"
	"github.com/agentforge/runtime/internal/eventlog"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/internal/sandbox"
	"github.com/agentforge/runtime/internal/tools"
	"github.com/agentforge/runtime/pkg/eventsourcing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, hostDir string) (*runtime.Handler, *Handler) {
	t.Helper()
	store := eventlog.NewMemoryStore()
	rt := runtime.NewHandler(store, aggregate.AggregateType, func() aggregate.Extension {
		return aggregate.NoopExtension{TypeName: "test"}
	}, nil)

	registry, err := tools.NewDefaultRegistry()
	require.NoError(t, err)

	mgr := sandbox.NewManager(sandbox.NewFakeBackend(), config.TemplateConfig{})
	resolver := NewManagerResolver(mgr, func(aggregateID string) (string, sandbox.WorkspaceAccessMode, []string, error) {
		return hostDir, sandbox.WorkspaceReadWrite, nil, nil
	})

	return rt, New(registry, sandbox.NewFakeBackend(), resolver, nil, nil)
}

func TestHandler_Process_ExecutesCallsAndPutsResults(t *testing.T) {
	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "name.txt"), []byte("world"), 0o644))

	rt, h := newTestHandler(t, hostDir)
	ctx := context.Background()

	_, err := rt.Execute(ctx, "agent-1", aggregate.PutUserMessage{Content: "go"}, eventsourcing.Metadata{})
	require.NoError(t, err)

	envs, err := rt.Execute(ctx, "agent-1", aggregate.PutCompletion{Response: aggregate.CompletionResponse{
		ToolCalls: []aggregate.ToolCall{
			{ID: "call-1", Name: "bash", Arguments: []byte(`{"command":"cat name.txt"}`)},
		},
		FinishReason: aggregate.FinishToolUse,
	}}, eventsourcing.Metadata{})
	require.NoError(t, err)
	require.Len(t, envs, 2)

	toolCallsEnv := envs[1]
	event, err := rt.DecodeEnvelope(toolCallsEnv)
	require.NoError(t, err)

	require.NoError(t, h.Process(ctx, rt, toolCallsEnv, event))

	state, _, err := rt.Load(ctx, "agent-1")
	require.NoError(t, err)
	call, ok := state.Calls["call-1"]
	require.True(t, ok)
	assert.True(t, call.Resolved)
	assert.Equal(t, "world", call.Result.Content)
	assert.False(t, call.Result.IsError)
}

func TestHandler_Process_IgnoresNonToolCallsEvents(t *testing.T) {
	rt, h := newTestHandler(t, t.TempDir())
	ctx := context.Background()

	envs, err := rt.Execute(ctx, "agent-2", aggregate.PutUserMessage{Content: "hi"}, eventsourcing.Metadata{})
	require.NoError(t, err)
	require.Len(t, envs, 1)

	event, err := rt.DecodeEnvelope(envs[0])
	require.NoError(t, err)

	assert.NoError(t, h.Process(ctx, rt, envs[0], event))
}

func TestHandler_Process_UnknownToolProducesErrorResult(t *testing.T) {
	rt, h := newTestHandler(t, t.TempDir())
	ctx := context.Background()

	_, err := rt.Execute(ctx, "agent-3", aggregate.PutUserMessage{Content: "go"}, eventsourcing.Metadata{})
	require.NoError(t, err)

	envs, err := rt.Execute(ctx, "agent-3", aggregate.PutCompletion{Response: aggregate.CompletionResponse{
		ToolCalls:    []aggregate.ToolCall{{ID: "call-x", Name: "does_not_exist", Arguments: []byte(`{}`)}},
		FinishReason: aggregate.FinishToolUse,
	}}, eventsourcing.Metadata{})
	require.NoError(t, err)
	require.Len(t, envs, 2)

	toolCallsEnv := envs[1]
	event, err := rt.DecodeEnvelope(toolCallsEnv)
	require.NoError(t, err)
	require.NoError(t, h.Process(ctx, rt, toolCallsEnv, event))

	state, _, err := rt.Load(ctx, "agent-3")
	require.NoError(t, err)
	assert.True(t, state.Calls["call-x"].Result.IsError)
}
