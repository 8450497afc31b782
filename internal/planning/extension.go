// Package planning implements the task-plan bookkeeping backing the
// create_plan/update_plan/add_task/complete_task/get_plan_status tools
// in internal/planningtools.
//
// Grounded on
// _examples/original_source/dabgent/dabgent_agent/src/toolbox/planning.rs,
// whose tools re-derive the current task list by scanning the event
// store for the most recent PlanCreated/PlanUpdated event before every
// mutating call. This runtime already has a per-aggregate fold
// (aggregate.Apply) deriving extension state from committed events, so
// Extension here folds the same information out of the ToolResultsEvent
// that every plan tool's call already produces, instead of opening a
// second event stream the way the Rust tools push directly to
// dabgent_mq::EventStore.
package planning

import (
	"encoding/json"

	"github.com/agentforge/runtime/internal/aggregate"
)

// Tool names this extension recognises in ToolResultsEvent content.
const (
	ToolCreatePlan    = "create_plan"
	ToolUpdatePlan    = "update_plan"
	ToolAddTask       = "add_task"
	ToolCompleteTask  = "complete_task"
	ToolGetPlanStatus = "get_plan_status"
)

// ErrNoPlan is returned by planningtools when a tool other than
// create_plan is called before any plan exists, matching planning.rs's
// "No plan exists yet. Use create_plan first." message.
const ErrNoPlan = "no plan exists yet: use create_plan first"

// State is the current plan as folded from committed tool results: an
// ordered task list plus the set of task indexes marked complete.
type State struct {
	Tasks            []string
	CompletedIndexes map[int]bool
}

// HasPlan reports whether create_plan has ever run.
func (s *State) HasPlan() bool { return s != nil && s.Tasks != nil }

// planResult is the JSON shape create_plan/update_plan/add_task emit as
// their tool result content; Apply folds it back into State.
type planResult struct {
	Tasks []string `json:"tasks"`
}

// completeResult is complete_task's result shape.
type completeResult struct {
	CompletedIndex int `json:"completed_index"`
}

// Extension folds the planning toolset's results into a Plan. It adds
// no commands or events of its own: every plan mutation already flows
// through the shared reducer's ToolResultsEvent the way an ordinary
// write_file result does, so Handle only needs to decline, the same as
// internal/planner.Extension.
type Extension struct {
	TypeName string
	State    State
}

// NewExtension returns an Extension with an empty plan, reporting
// typeName from Type() so it can take the slot a NoopExtension would
// otherwise fill for the single-agent daemon scenario.
func NewExtension(typeName string) *Extension {
	return &Extension{TypeName: typeName, State: State{CompletedIndexes: make(map[int]bool)}}
}

func (e *Extension) Type() string { return e.TypeName }

func (e *Extension) Handle(*aggregate.AgentState, aggregate.Command) ([]aggregate.Event, error, bool) {
	return nil, nil, false
}

// Apply inspects every ToolResultsEvent for results from the planning
// toolset and folds them into State. Looking up state.Calls[id].Call.Name
// works because the shared apply_shared has already run for this event
// (see aggregate.Apply) without replacing the Call field, only Result
// and Resolved.
func (e *Extension) Apply(state *aggregate.AgentState, event aggregate.Event) {
	results, ok := event.(aggregate.ToolResultsEvent)
	if !ok {
		return
	}
	for _, r := range results.Results {
		if r.IsError {
			continue
		}
		call, ok := state.Calls[r.ToolCallID]
		if !ok {
			continue
		}
		switch call.Call.Name {
		case ToolCreatePlan, ToolUpdatePlan, ToolAddTask:
			var pr planResult
			if err := json.Unmarshal([]byte(r.Content), &pr); err != nil {
				continue
			}
			e.State.Tasks = pr.Tasks
			if call.Call.Name == ToolCreatePlan {
				e.State.CompletedIndexes = make(map[int]bool)
			}
		case ToolCompleteTask:
			var cr completeResult
			if err := json.Unmarshal([]byte(r.Content), &cr); err != nil {
				continue
			}
			if e.State.CompletedIndexes == nil {
				e.State.CompletedIndexes = make(map[int]bool)
			}
			e.State.CompletedIndexes[cr.CompletedIndex] = true
		}
	}
}

// Snapshot returns a defensive copy of the current plan for a tool's
// Execute to read without racing the handler's own fold.
func (e *Extension) Snapshot() *State {
	if e == nil {
		return nil
	}
	var tasks []string
	if e.State.Tasks != nil {
		tasks = make([]string, len(e.State.Tasks))
		copy(tasks, e.State.Tasks)
	}
	completed := make(map[int]bool, len(e.State.CompletedIndexes))
	for k, v := range e.State.CompletedIndexes {
		completed[k] = v
	}
	return &State{Tasks: tasks, CompletedIndexes: completed}
}

// Snapshotter is implemented by Extension; toolhandler depends on this
// narrow interface instead of *Extension directly so a daemon wired
// with a different Extension (worker, planner, NoopExtension) simply
// gets a nil Plan rather than a type-assertion panic.
type Snapshotter interface {
	Snapshot() *State
}

var _ Snapshotter = (*Extension)(nil)
var _ aggregate.Extension = (*Extension)(nil)
