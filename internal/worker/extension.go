// Package worker implements the "worker" Agent variant from spec.md's S4
// scenario: a short-lived aggregate created by a planner's send_task
// delegation, which runs the shared reducer to completion and reports a
// Finished marker carrying the result back to its parent.
//
// Grounded on the delegation pattern in
// _examples/original_source/dabgent/dabgent_agent/src/processor/delegation/mod.rs
// (a parent thread's trigger tool call spins up a task thread carrying
// parent/tool-id bookkeeping; the task thread's terminal tool reports a
// result back through that same bookkeeping), simplified to this
// runtime's aggregate.Extension + runtime.Link shape instead of a
// separate delegation processor scanning the whole event stream.
package worker

import (
	"encoding/json"

	"github.com/agentforge/runtime/internal/aggregate"
)

// Extension kinds, namespaced under "agent.extension." by AgentEvt.EventType.
const (
	KindAssigned = "assigned"
	KindFinished = "finished"
)

// Assign carries the parent aggregate/call this worker was spun up for,
// plus the task description to seed its first UserCompletion with.
// Dispatched as aggregate.AgentCmd{Inner: Assign{...}} by the planner-side
// Forward translation (see Forward in this package).
type Assign struct {
	ParentID    string `json:"parent_id"`
	CallID      string `json:"call_id"`
	Description string `json:"description"`
}

// Finished carries the outcome reported back to the parent once the
// worker's "done" tool resolves.
type Finished struct {
	ParentID string `json:"parent_id"`
	CallID   string `json:"call_id"`
	Result   string `json:"result"`
}

// ExtensionDecoder reconstructs Assign/Finished payloads during replay.
func ExtensionDecoder(kind string, payload []byte) (interface{}, error) {
	switch kind {
	case KindAssigned:
		var a Assign
		if len(payload) == 0 {
			return a, nil
		}
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case KindFinished:
		var f Finished
		if len(payload) == 0 {
			return f, nil
		}
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, nil
	}
}

// Extension is the worker variant's per-aggregate state: which parent
// call it was delegated by, set once an Assign event is applied.
type Extension struct {
	ParentID string
	CallID   string
}

// NewExtension returns a fresh, unassigned worker Extension.
func NewExtension() *Extension { return &Extension{} }

func (e *Extension) Type() string { return "worker" }

// Handle reacts to two commands beyond the shared alphabet: an AgentCmd
// carrying Assign (bootstraps the worker's parent bookkeeping and its
// first conversation turn) and PutToolResults whose result resolves the
// worker's "done" call (reports Finished).
func (e *Extension) Handle(state *aggregate.AgentState, cmd aggregate.Command) ([]aggregate.Event, error, bool) {
	switch c := cmd.(type) {
	case aggregate.AgentCmd:
		assign, ok := c.Inner.(Assign)
		if !ok {
			return nil, nil, false
		}
		return []aggregate.Event{
			aggregate.AgentEvt{Kind: KindAssigned, Inner: assign},
			aggregate.UserCompletionEvent{Content: assign.Description},
		}, nil, true

	case aggregate.PutToolResults:
		for _, r := range c.Results {
			call, ok := state.Calls[r.ToolCallID]
			if !ok || call.Call.Name != "done" {
				continue
			}
			if e.ParentID == "" || e.CallID == "" {
				continue
			}
			return []aggregate.Event{aggregate.AgentEvt{Kind: KindFinished, Inner: Finished{
				ParentID: e.ParentID,
				CallID:   e.CallID,
				Result:   r.Content,
			}}}, nil, true
		}
		return nil, nil, false

	default:
		return nil, nil, false
	}
}

// Apply records parent/call bookkeeping from an Assigned marker. Every
// other event is left to the shared apply.
func (e *Extension) Apply(state *aggregate.AgentState, event aggregate.Event) {
	evt, ok := event.(aggregate.AgentEvt)
	if !ok || evt.Kind != KindAssigned {
		return
	}
	switch inner := evt.Inner.(type) {
	case Assign:
		e.ParentID, e.CallID = inner.ParentID, inner.CallID
	case map[string]interface{}:
		if v, ok := inner["parent_id"].(string); ok {
			e.ParentID = v
		}
		if v, ok := inner["call_id"].(string); ok {
			e.CallID = v
		}
	}
}

// AggregateID derives a worker's aggregate id from the planner tool call
// that spawned it, matching spec.md §9 S4's `"task_" + call.id` rule.
func AggregateID(callID string) string { return "task_" + callID }
