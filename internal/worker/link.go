package worker

import (
	"context"
	"encoding/json"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// triggerTool is the tool call name a planner-variant agent emits to
// delegate work to a worker, per spec.md §9 S4.
const triggerTool = "send_task"

// sendTaskArgs is the expected shape of a send_task tool call's
// arguments.
type sendTaskArgs struct {
	Description string `json:"description"`
}

// Forward is a runtime.ForwardFunc: on a send_task tool call, it targets
// a freshly-named worker aggregate and assigns it, per spec.md §9 S4
// ("Link forwards to a freshly-created worker whose aggregate_id is
// 'task_' + call.id").
func Forward(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event, a *runtime.Handler) (string, aggregate.Command, bool, error) {
	calls, ok := event.(aggregate.ToolCallsEvent)
	if !ok {
		return "", nil, false, nil
	}
	for _, c := range calls.Calls {
		if c.Name != triggerTool {
			continue
		}
		var args sendTaskArgs
		if len(c.Arguments) > 0 {
			_ = json.Unmarshal(c.Arguments, &args)
		}
		if args.Description == "" {
			args.Description = string(c.Arguments)
		}
		return AggregateID(c.ID), aggregate.AgentCmd{Inner: Assign{
			ParentID:    env.AggregateID,
			CallID:      c.ID,
			Description: args.Description,
		}}, true, nil
	}
	return "", nil, false, nil
}

// Backward is a runtime.BackwardFunc: on a worker's Finished marker, it
// resolves the original send_task call on the parent with the worker's
// result, per spec.md §9 S4's "backward command delivers a ToolResults
// to the planner that resolves the original send_task call".
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
			f.Result, _ = m["result"].(string)
		}
		finished = f
	}
	if finished.ParentID == "" || finished.CallID == "" {
		return "", nil, false, nil
	}

	return finished.ParentID, aggregate.PutToolResults{Results: []aggregate.ToolResult{
		{ToolCallID: finished.CallID, Content: finished.Result},
	}}, true, nil
}
