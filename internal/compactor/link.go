package compactor

import (
	"context"
	"encoding/json"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// triggerTool is the tool call name any aggregate variant emits to
// delegate an oversized error message for compaction, matching
// compaction.rs's CompactionHandler::trigger_tool ("compact_error").
const triggerTool = "compact_error"

// compactErrorArgs is the expected shape of a compact_error tool call's
// arguments.
type compactErrorArgs struct {
	ErrorText string `json:"error_text"`
	Threshold int    `json:"threshold"`
}

// defaultThreshold matches compaction.rs's default character budget
// when a caller omits threshold.
const defaultThreshold = 2000

// Forward is a runtime.ForwardFunc: on a compact_error tool call, it
// targets a freshly-named compactor aggregate and assigns it the
// oversized text and budget to compress it under, mirroring
// worker.Forward's send_task handoff.
func Forward(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event, a *runtime.Handler) (string, aggregate.Command, bool, error) {
	calls, ok := event.(aggregate.ToolCallsEvent)
	if !ok {
		return "", nil, false, nil
	}
	for _, c := range calls.Calls {
		if c.Name != triggerTool {
			continue
		}
		var args compactErrorArgs
		if len(c.Arguments) > 0 {
			_ = json.Unmarshal(c.Arguments, &args)
		}
		if args.ErrorText == "" {
			args.ErrorText = string(c.Arguments)
		}
		if args.Threshold <= 0 {
			args.Threshold = defaultThreshold
		}
		return AggregateID(c.ID), aggregate.AgentCmd{Inner: Assign{
			ParentID:  env.AggregateID,
			CallID:    c.ID,
			ErrorText: args.ErrorText,
			Threshold: args.Threshold,
		}}, true, nil
	}
	return "", nil, false, nil
}

// Backward is a runtime.BackwardFunc: on a compactor's Finished marker,
// it resolves the original compact_error call on the parent with the
// compacted summary, mirroring worker.Backward.
func Backward(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event, b *runtime.Handler) (string, aggregate.Command, bool, error) {
	evt, ok := event.(aggregate.AgentEvt)
	if !ok || evt.Kind != KindFinished {
		return "", nil, false, nil
	}

	finished, ok := evt.Inner.(Finished)
	if !ok {
		var f Finished
		if m, ok := evt.Inner.(map[string]interface{}); ok {
			f.ParentID, _ = m["parent_id"].(string)
			f.CallID, _ = m["call_id"].(string)
			f.Summary, _ = m["summary"].(string)
		}
		finished = f
	}
	if finished.ParentID == "" || finished.CallID == "" {
		return "", nil, false, nil
	}

	return finished.ParentID, aggregate.PutToolResults{Results: []aggregate.ToolResult{
		{ToolCallID: finished.CallID, Content: finished.Summary},
	}}, true, nil
}
