// Package compactor implements the "compactor" Agent variant: a
// short-lived delegate spun up to compress an oversized error message
// down to a caller-specified character budget, then report the
// compacted text back to whichever aggregate triggered it.
//
// Grounded on
// _examples/original_source/dabgent/dabgent_agent/src/processor/delegation/compaction.rs,
// which drives the same compact-then-report-back flow through a generic
// DelegationHandler trait (trigger_tool/thread_prefix/worker_name plus
// handle/format_result/should_handle callbacks) layered over a shared
// delegation processor. This runtime already has that generic shape as
// internal/runtime.Link plus an aggregate.Extension (see
// internal/worker, whose Forward/Backward pair plays the same role as
// compaction.rs's DelegationHandler::handle/create_completion_result),
// so compactor reuses it instead of introducing a second delegation
// framework: Extension mirrors worker.Extension's Assign/Finished shape,
// and Forward/Backward in link.go mirror worker.Forward/worker.Backward.
package compactor

import (
	"encoding/json"
	"fmt"

	"github.com/agentforge/runtime/internal/aggregate"
)

// Extension kinds, namespaced under "agent.extension." by AgentEvt.EventType.
const (
	KindAssigned = "assigned"
	KindFinished = "finished"
)

// Assign carries the parent aggregate/call and the oversized text this
// compactor aggregate was spun up to compress, plus the character
// budget to compress it under.
type Assign struct {
	ParentID  string `json:"parent_id"`
	CallID    string `json:"call_id"`
	ErrorText string `json:"error_text"`
	Threshold int    `json:"threshold"`
}

// Finished carries the compacted result reported back to the parent.
type Finished struct {
	ParentID string `json:"parent_id"`
	CallID   string `json:"call_id"`
	Summary  string `json:"summary"`
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

// finishDelegationTool is the only tool a compactor's completion
// requests advertise, matching compaction.rs's single-tool
// CompactionHandler toolset (FinishDelegationTool).
const finishDelegationTool = "finish_delegation"

// finishDelegationArgs is the expected shape of a finish_delegation
// call's arguments.
type finishDelegationArgs struct {
	Result string `json:"result"`
}

// systemPrompt seeds a compactor aggregate's completion requests,
// mirroring compaction.rs's COMPACTION_SYSTEM_PROMPT.
const systemPrompt = "You are an error message compactor. Reduce the error message to the given character budget while preserving error types, file paths, line numbers, and root causes. Remove repetitive stack frames and verbose detail. Call finish_delegation with your compacted result when done."

// Extension is the compactor variant's per-aggregate state: which
// parent call it was delegated by, and the character budget it must
// compact under, both set once an Assigned marker is applied.
type Extension struct {
	ParentID  string
	CallID    string
	Threshold int
}

// NewExtension returns a fresh, unassigned compactor Extension.
func NewExtension() *Extension { return &Extension{} }

func (e *Extension) Type() string { return "compactor" }

// Handle reacts to two commands beyond the shared alphabet: an AgentCmd
// carrying Assign (bootstraps bookkeeping and seeds the first
// completion's prompt) and PutToolResults whose result resolves the
// compactor's finish_delegation call (reports Finished).
func (e *Extension) Handle(state *aggregate.AgentState, cmd aggregate.Command) ([]aggregate.Event, error, bool) {
	switch c := cmd.(type) {
	case aggregate.AgentCmd:
		assign, ok := c.Inner.(Assign)
		if !ok {
			return nil, nil, false
		}
		prompt := fmt.Sprintf("%s\n\nCompact this error message to under %d characters:\n\n%s", systemPrompt, assign.Threshold, assign.ErrorText)
		return []aggregate.Event{
			aggregate.AgentEvt{Kind: KindAssigned, Inner: assign},
			aggregate.UserCompletionEvent{Content: prompt},
		}, nil, true

	case aggregate.PutToolResults:
		for _, r := range c.Results {
			call, ok := state.Calls[r.ToolCallID]
			if !ok || call.Call.Name != finishDelegationTool {
				continue
			}
			if e.ParentID == "" || e.CallID == "" {
				continue
			}
			summary := extractResult(call, r)
			return []aggregate.Event{aggregate.AgentEvt{Kind: KindFinished, Inner: Finished{
				ParentID: e.ParentID,
				CallID:   e.CallID,
				Summary:  summary,
			}}}, nil, true
		}
		return nil, nil, false

	default:
		return nil, nil, false
	}
}

// extractResult prefers the structured "result" argument the model
// passed to finish_delegation, falling back to the raw tool result
// content if the call's arguments didn't parse (e.g. the model replied
// with the summary directly as content).
func extractResult(call *aggregate.CallState, r aggregate.ToolResult) string {
	var args finishDelegationArgs
	if len(call.Call.Arguments) > 0 {
		if err := json.Unmarshal(call.Call.Arguments, &args); err == nil && args.Result != "" {
			return args.Result
		}
	}
	return r.Content
}

// Apply records parent/call/threshold bookkeeping from an Assigned
// marker. Every other event is left to the shared apply.
func (e *Extension) Apply(state *aggregate.AgentState, event aggregate.Event) {
	evt, ok := event.(aggregate.AgentEvt)
	if !ok || evt.Kind != KindAssigned {
		return
	}
	switch inner := evt.Inner.(type) {
	case Assign:
		e.ParentID, e.CallID, e.Threshold = inner.ParentID, inner.CallID, inner.Threshold
	case map[string]interface{}:
		if v, ok := inner["parent_id"].(string); ok {
			e.ParentID = v
		}
		if v, ok := inner["call_id"].(string); ok {
			e.CallID = v
		}
		if v, ok := inner["threshold"].(float64); ok {
			e.Threshold = int(v)
		}
	}
}

// AggregateID derives a compactor's aggregate id from the triggering
// call, matching worker.AggregateID's "task_" + call.id naming
// convention adapted to this variant's own prefix.
func AggregateID(callID string) string { return "compact_" + callID }
