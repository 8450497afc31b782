package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/eventlog"
	"github.com/agentforge/runtime/internal/listener"
	"github.com/agentforge/runtime/internal/planner"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/internal/worker"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// TestScenarioS4_PlannerWorkerRoundTrip exercises spec.md §9 S4 end to
// end with the concrete planner/worker Extension types and the real
// worker.Forward/worker.Backward translations, rather than the generic
// simulation in internal/runtime's own test suite.
func TestScenarioS4_PlannerWorkerRoundTrip(t *testing.T) {
	store := eventlog.NewMemoryStore()
	queue := listener.NewPollingQueue(store)

	plannerHandler := runtime.NewHandler(queue, "planner", func() aggregate.Extension {
		return planner.NewExtension()
	}, nil)
	workerHandler := runtime.NewHandler(queue, "worker", func() aggregate.Extension {
		return worker.NewExtension()
	}, worker.ExtensionDecoder)

	plannerListener := listener.New(queue, "planner").WithPollInterval(5 * time.Millisecond)
	workerListener := listener.New(queue, "worker").WithPollInterval(5 * time.Millisecond)

	plannerRT := runtime.New(plannerHandler, plannerListener)
	workerRT := runtime.New(workerHandler, workerListener)

	runtime.Attach(plannerRT, workerRT, runtime.Link{Forward: worker.Forward, Backward: worker.Backward})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = plannerRT.Start(ctx) }()
	go func() { _ = workerRT.Start(ctx) }()

	_, err := plannerHandler.Execute(ctx, "planner-1", aggregate.PutCompletion{
		Response: aggregate.CompletionResponse{
			ToolCalls: []aggregate.ToolCall{{ID: "c1", Name: "send_task", Arguments: []byte(`{"description":"fetch my ip"}`)}},
		},
	}, eventsourcing.Metadata{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, _, err := workerHandler.Load(ctx, "task_c1")
		return err == nil && len(state.Messages) == 1
	}, time.Second, 5*time.Millisecond)

	workerState, _, err := workerHandler.Load(ctx, "task_c1")
	require.NoError(t, err)
	assert.Equal(t, "fetch my ip", workerState.Messages[0].Content)
	ext := workerState.Extension.(*worker.Extension)
	assert.Equal(t, "planner-1", ext.ParentID)
	assert.Equal(t, "c1", ext.CallID)

	_, err = workerHandler.Execute(ctx, "task_c1", aggregate.PutCompletion{
		Response: aggregate.CompletionResponse{
			ToolCalls:    []aggregate.ToolCall{{ID: "w1", Name: "done", Arguments: []byte(`{"summary":"task completed"}`)}},
			FinishReason: aggregate.FinishToolUse,
		},
	}, eventsourcing.Metadata{})
	require.NoError(t, err)

	_, err = workerHandler.Execute(ctx, "task_c1", aggregate.PutToolResults{
		Results: []aggregate.ToolResult{{ToolCallID: "w1", Content: "task completed"}},
	}, eventsourcing.Metadata{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, _, err := plannerHandler.Load(ctx, "planner-1")
		return err == nil && state.AllToolsReady()
	}, time.Second, 5*time.Millisecond)

	plannerState, _, err := plannerHandler.Load(ctx, "planner-1")
	require.NoError(t, err)
	require.Len(t, plannerState.Messages, 2)
	assert.Equal(t, aggregate.TurnUser, plannerState.Messages[1].Role)
	assert.Equal(t, "task completed", plannerState.Messages[1].Content)

	plannerExt := plannerState.Extension.(*planner.Extension)
	assert.Equal(t, "task_c1", plannerExt.Delegations["c1"])
}
