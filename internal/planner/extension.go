// Package planner implements the "planner" Agent variant from spec.md's
// S4 scenario: an ordinary agent whose conversation may include a
// send_task tool call that internal/worker.Forward translates into a
// freshly-spawned worker aggregate. The planner itself needs no custom
// commands or events — delegation is a Link concern (internal/worker) —
// but tracks which outstanding calls it has delegated, grounded on how
// the teacher-adjacent delegation pattern in
// _examples/original_source/dabgent/dabgent_agent/src/processor/delegation/mod.rs
// keeps a record of in-flight delegated tool calls to route their
// eventual results back correctly.
package planner

import "github.com/agentforge/runtime/internal/aggregate"

// sendTaskTool is the tool name that triggers delegation, kept in sync
// with internal/worker's trigger tool.
const sendTaskTool = "send_task"

// Extension is the planner variant's per-aggregate state. It adds no
// commands or events of its own, so it needs no ExtensionDecoder: every
// event this variant's aggregate records decodes via the shared
// aggregate.Decode alphabet alone.
type Extension struct {
	// Delegations maps an outstanding send_task call id to the worker
	// aggregate id it was forwarded to, populated from Apply as calls
	// are observed (not from the Link itself, which has no channel back
	// into this aggregate's own state).
	Delegations map[string]string
}

// NewExtension returns a fresh Extension with an empty delegation table.
func NewExtension() *Extension {
	return &Extension{Delegations: make(map[string]string)}
}

func (e *Extension) Type() string { return "planner" }

// Handle adds nothing beyond the shared reducer: a planner's send_task
// call is resolved the same way any other tool call is, via the
// ToolResults the worker Link eventually delivers.
func (e *Extension) Handle(*aggregate.AgentState, aggregate.Command) ([]aggregate.Event, error, bool) {
	return nil, nil, false
}

// Apply records every send_task call's derived worker aggregate id, so a
// caller inspecting planner state can see which worker each outstanding
// delegation maps to without recomputing the naming rule.
func (e *Extension) Apply(_ *aggregate.AgentState, event aggregate.Event) {
	calls, ok := event.(aggregate.ToolCallsEvent)
	if !ok {
		return
	}
	for _, c := range calls.Calls {
		if c.Name == sendTaskTool {
			e.Delegations[c.ID] = "task_" + c.ID
		}
	}
}
