// Package finish implements C7: replaying an agent's mutating tool calls
// into a fresh sandbox, exporting its workspace as a git tree, and
// driving the aggregate to Shutdown. Grounded on
// _examples/original_source/dabgent/dabgent_agent/src/processor/finish.rs's
// FinishHandler (replay_and_export / replay_events / replay_tool_calls /
// export_artifacts), adapted to this runtime's typed terminal marker
// (aggregate.AgentEvt{Kind: "finished"}) instead of the original's
// event-type substring match.
package finish

import (
	"context"
	"fmt"
	"os"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/observability"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/internal/sandbox"
	"github.com/agentforge/runtime/internal/toolhandler"
	"github.com/agentforge/runtime/internal/tools"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// gitCommands prepares /app as a git repository so its tree can be
// checked out into /output, mirroring finish.rs's export_artifacts.
var gitCommands = []string{
	"git -C /app init",
	"git -C /app config user.email agent@agentrtd.local",
	"git -C /app config user.name Agent",
	"git -C /app add -A",
}

// Handler subscribes to an agent variant's Finished marker, replays its
// mutating tool calls into a fresh sandbox, exports the result, and
// issues Shutdown.
type Handler struct {
	Tools      *tools.Registry
	Backend    sandbox.ContainerBackend
	Workspace  toolhandler.WorkspaceResolver
	ExportRoot string
	Logger     *observability.Logger
}

// New builds a finish EventHandler.
func New(registry *tools.Registry, backend sandbox.ContainerBackend, workspace toolhandler.WorkspaceResolver, exportRoot string, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NoopLogger()
	}
	return &Handler{Tools: registry, Backend: backend, Workspace: workspace, ExportRoot: exportRoot, Logger: logger}
}

var _ runtime.EventHandler = (*Handler)(nil)

// Process implements runtime.EventHandler: on the variant's Finished
// marker it replays and exports, then issues ShutdownCmd. A replay or
// export failure is logged and Shutdown is withheld — per finish.rs,
// which retries nothing and leaves the aggregate running rather than
// shutting down on top of a failed export.
func (h *Handler) Process(ctx context.Context, rt *runtime.Handler, env eventsourcing.Envelope, event aggregate.Event) error {
	ext, ok := event.(aggregate.AgentEvt)
	if !ok || ext.Kind != "finished" {
		return nil
	}

	if err := h.replayAndExport(ctx, rt, env.AggregateID); err != nil {
		h.Logger.Error(ctx, "finish: replay and export failed", "aggregate_id", env.AggregateID, "error", err)
		return nil
	}

	h.Logger.Info(ctx, "finish: export complete, triggering shutdown", "aggregate_id", env.AggregateID)
	_, err := rt.Execute(ctx, env.AggregateID, aggregate.ShutdownCmd{}, eventsourcing.Metadata{
		CorrelationID: env.Metadata.CorrelationID,
		CausationID:   fmt.Sprintf("%s/%s@%d", env.AggregateType, env.AggregateID, env.Sequence),
	})
	if err != nil {
		return fmt.Errorf("finish: shutdown %s: %w", env.AggregateID, err)
	}
	return nil
}

// Replay runs the same replay-and-export sequence Process triggers
// automatically on a Finished marker, for callers (agentrtctl's
// "finish" command) that need to force it without waiting for the
// aggregate to reach its terminal event.
func (h *Handler) Replay(ctx context.Context, rt *runtime.Handler, aggregateID string) error {
	return h.replayAndExport(ctx, rt, aggregateID)
}

func (h *Handler) replayAndExport(ctx context.Context, rt *runtime.Handler, aggregateID string) error {
	sb, access, err := h.Workspace.Resolve(ctx, aggregateID)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	rc := tools.RunContext{Backend: h.Backend, Handle: sb.Handle(), Access: access}

	envs, err := rt.Store.LoadEvents(ctx, rt.AggregateType, aggregateID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	for _, env := range envs {
		event, err := rt.DecodeEnvelope(env)
		if err != nil {
			return fmt.Errorf("decode event %s@%d: %w", env.EventType, env.Sequence, err)
		}
		h.replayEvent(ctx, rc, aggregateID, event)
	}

	return h.exportArtifacts(ctx, rc, sb, aggregateID)
}

// replayEvent re-runs every mutating tool call recorded in an
// AgentCompletionEvent whose finish reason is tool use. Failures are
// logged and skipped rather than aborting the whole replay, matching
// finish.rs's replay_tool_calls (tracing::warn and continue).
func (h *Handler) replayEvent(ctx context.Context, rc tools.RunContext, aggregateID string, event aggregate.Event) {
	completion, ok := event.(aggregate.AgentCompletionEvent)
	if !ok || completion.Response.FinishReason != aggregate.FinishToolUse {
		return
	}
	for _, call := range completion.Response.ToolCalls {
		if !h.Tools.NeedsReplay(call.Name) {
			continue
		}
		if _, err := h.Tools.Execute(ctx, rc, call.Name, call.Arguments); err != nil {
			h.Logger.Warn(ctx, "finish: replay tool call failed", "aggregate_id", aggregateID, "tool", call.Name, "tool_call_id", call.ID, "error", err)
		}
	}
}

// exportArtifacts snapshots /app as a git tree and exports it to
// ExportRoot/aggregateID on the host, mirroring finish.rs's shell-out
// sequence: prepare /output, git init+add, checkout-index into /output
// (falling back to a plain recursive copy if checkout-index fails), then
// hand the backend the final host destination.
func (h *Handler) exportArtifacts(ctx context.Context, rc tools.RunContext, sb *sandbox.Sandbox, aggregateID string) error {
	dest := h.ExportRoot + "/" + aggregateID
	if err := os.MkdirAll(h.ExportRoot, 0o755); err != nil {
		return fmt.Errorf("create export root: %w", err)
	}

	prep, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"sh", "-c", "rm -rf /output && mkdir -p /output"}, "")
	if err != nil {
		return fmt.Errorf("prepare /output: %w", err)
	}
	if prep.ExitCode != 0 {
		return fmt.Errorf("prepare /output: %s", prep.Stderr)
	}

	for _, cmd := range gitCommands {
		res, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"sh", "-c", cmd}, "")
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if res.ExitCode != 0 && res.Stderr != "" {
			return fmt.Errorf("%s: %s", cmd, res.Stderr)
		}
	}

	checkout, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"sh", "-c", "git -C /app checkout-index --all --prefix=/output/ 2>&1"}, "")
	if err != nil {
		return fmt.Errorf("checkout-index: %w", err)
	}
	if checkout.ExitCode != 0 {
		if _, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"sh", "-c", "cp -r /app/* /output/ 2>&1 || true"}, ""); err != nil {
			return fmt.Errorf("fallback copy: %w", err)
		}
	}

	if err := rc.Backend.ExportDirectory(ctx, rc.Handle, "/output", dest); err != nil {
		return fmt.Errorf("export /output to %s: %w", dest, err)
	}
	return nil
}
