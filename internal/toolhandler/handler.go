// Package toolhandler implements C6: the subscriber that turns a
// ToolCallsEvent into executed tool calls and a PutToolResults command,
// mirroring the shape of internal/llmhandler's EventHandler but
// dispatching into internal/tools.Registry against a sandboxed
// workspace instead of calling an LLM provider.
package toolhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/observability"
	"github.com/agentforge/runtime/internal/planning"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/internal/sandbox"
	"github.com/agentforge/runtime/internal/tools"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// WorkspaceResolver locates (creating if necessary) the sandbox backing
// one agent aggregate's workspace. Agent-variant packages (planner,
// worker) own the decision of what host directory and access mode an
// aggregate ID maps to; the handler only needs the result.
type WorkspaceResolver interface {
	Resolve(ctx context.Context, aggregateID string) (*sandbox.Sandbox, sandbox.WorkspaceAccessMode, error)
}

// Handler subscribes to ToolCallsEvent and drives every call in it to a
// PutToolResults command.
type Handler struct {
	Registry  *tools.Registry
	Backend   sandbox.ContainerBackend
	Workspace WorkspaceResolver
	Logger    *observability.Logger
	Events    *observability.EventRecorder
}

// New builds a tool-call EventHandler. A nil events recorder disables
// timeline recording; New does not default one in because the store
// backing it (size, retention) is an operational choice the caller
// should make explicitly.
func New(registry *tools.Registry, backend sandbox.ContainerBackend, workspace WorkspaceResolver, logger *observability.Logger, events *observability.EventRecorder) *Handler {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	return &Handler{Registry: registry, Backend: backend, Workspace: workspace, Logger: logger, Events: events}
}

var _ runtime.EventHandler = (*Handler)(nil)

// Process implements runtime.EventHandler: on ToolCallsEvent it runs
// every call through h.Registry against the aggregate's sandbox and
// issues a single PutToolResults command carrying every outcome.
func (h *Handler) Process(ctx context.Context, rt *runtime.Handler, env eventsourcing.Envelope, event aggregate.Event) error {
	calls, ok := event.(aggregate.ToolCallsEvent)
	if !ok {
		return nil
	}
	if len(calls.Calls) == 0 {
		return nil
	}

	ctx = observability.AddAggregateID(ctx, env.AggregateID)

	sb, access, err := h.Workspace.Resolve(ctx, env.AggregateID)
	if err != nil {
		return fmt.Errorf("toolhandler: resolve workspace for %s: %w", env.AggregateID, err)
	}

	rc := tools.RunContext{Backend: h.Backend, Handle: sb.Handle(), Access: access, Plan: h.loadPlan(ctx, rt, env.AggregateID)}

	results := make([]aggregate.ToolResult, 0, len(calls.Calls))
	for _, call := range calls.Calls {
		results = append(results, h.executeOne(ctx, rc, call))
	}

	_, err = rt.Execute(ctx, env.AggregateID, aggregate.PutToolResults{Results: results}, eventsourcing.Metadata{
		CorrelationID: env.Metadata.CorrelationID,
		CausationID:   fmt.Sprintf("%s/%s@%d", env.AggregateType, env.AggregateID, env.Sequence),
	})
	if err != nil {
		return fmt.Errorf("toolhandler: put tool results: %w", err)
	}
	return nil
}

// loadPlan folds aggregateID's current state and returns its plan
// snapshot, or nil if the aggregate's Extension doesn't track one
// (worker/planner variants, or a bare NoopExtension). Folding a second
// time here — rt.Execute will fold again to apply PutToolResults — costs
// one extra Store.LoadEvents per batch; planningtools.Execute needs the
// plan as of before this batch's calls, the same point-in-time
// toolhandler already computes for everything else in this call.
func (h *Handler) loadPlan(ctx context.Context, rt *runtime.Handler, aggregateID string) *planning.State {
	state, _, err := rt.Load(ctx, aggregateID)
	if err != nil {
		return nil
	}
	snap, ok := state.Extension.(planning.Snapshotter)
	if !ok {
		return nil
	}
	return snap.Snapshot()
}

// executeOne runs a single tool call, translating any dispatch or
// execution error into an IsError ToolResult rather than letting it
// fail the whole batch: one bad call shouldn't block its siblings' or
// the agent's own error-handling turn from running.
func (h *Handler) executeOne(ctx context.Context, rc tools.RunContext, call aggregate.ToolCall) aggregate.ToolResult {
	ctx = observability.AddToolCallID(ctx, call.ID)
	h.Logger.Debug(ctx, "executing tool call", "tool_call_id", call.ID, "tool", call.Name)
	h.Events.RecordToolStart(ctx, call.Name, call.Arguments)

	start := time.Now()
	content, err := h.Registry.Execute(ctx, rc, call.Name, call.Arguments)
	h.Events.RecordToolEnd(ctx, call.Name, time.Since(start), content, err)
	if err != nil {
		h.Logger.Error(ctx, "tool call failed", "tool_call_id", call.ID, "tool", call.Name, "error", err)
		return aggregate.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}
	return aggregate.ToolResult{ToolCallID: call.ID, Content: content}
}
