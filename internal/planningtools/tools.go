// Package planningtools implements the planning toolset: create_plan,
// update_plan, add_task, complete_task, and get_plan_status. Registered
// alongside the rest of internal/tools's built-ins in
// tools.NewDefaultRegistry, it lets an agent track a task breakdown the
// same way the built-in file tools track a workspace, without needing a
// second aggregate or a side channel into the event store.
//
// Grounded on
// _examples/original_source/dabgent/dabgent_agent/src/toolbox/planning.rs:
// same five tool names, same argument shapes, and the same "no plan
// exists yet" rejection for every tool but create_plan. Where the Rust
// tools push PlanCreated/PlanUpdated events to a dedicated event store
// and re-derive the task list by re-querying it, these tools read the
// current plan from internal/planning's folded Extension snapshot
// (tools.RunContext.Plan) and report the result as ordinary tool-call
// content, which internal/planning.Extension folds back on commit.
package planningtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentforge/runtime/internal/planning"
	"github.com/agentforge/runtime/internal/tools"
)

// planOutput is the content create_plan/update_plan/add_task report;
// internal/planning.Extension parses it back into State on commit.
type planOutput struct {
	Tasks   []string `json:"tasks"`
	Message string   `json:"message"`
}

// completeOutput is complete_task's reported content.
type completeOutput struct {
	Task           string `json:"task"`
	Message        string `json:"message"`
	CompletedIndex int    `json:"completed_index"`
}

// CreatePlanTool replaces the current plan (if any) with a fresh,
// ordered task list.
type CreatePlanTool struct{}

type createPlanArgs struct {
	Tasks []string `json:"tasks" jsonschema:"required,description=An ordered list of concrete, actionable tasks"`
}

func (CreatePlanTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        planning.ToolCreatePlan,
		Description: "Create a plan by breaking down a task into concrete, actionable steps.",
		Schema:      tools.ReflectSchema(createPlanArgs{}),
	}
}

func (CreatePlanTool) NeedsReplay() bool { return false }

func (CreatePlanTool) Execute(_ context.Context, _ tools.RunContext, raw json.RawMessage) (string, error) {
	var args createPlanArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("create_plan: %w", err)
	}
	out := planOutput{Tasks: args.Tasks, Message: fmt.Sprintf("Created plan with %d tasks", len(args.Tasks))}
	return marshal(out)
}

// UpdatePlanTool replaces the existing plan's task list wholesale.
type UpdatePlanTool struct{}

type updatePlanArgs struct {
	Tasks []string `json:"tasks" jsonschema:"required,description=An updated ordered list of tasks to complete"`
}

func (UpdatePlanTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        planning.ToolUpdatePlan,
		Description: "Update the existing plan with a new set of tasks.",
		Schema:      tools.ReflectSchema(updatePlanArgs{}),
	}
}

func (UpdatePlanTool) NeedsReplay() bool { return false }

func (UpdatePlanTool) Execute(_ context.Context, rc tools.RunContext, raw json.RawMessage) (string, error) {
	if !rc.Plan.HasPlan() {
		return "", fmt.Errorf("update_plan: %s", planning.ErrNoPlan)
	}
	var args updatePlanArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("update_plan: %w", err)
	}
	out := planOutput{Tasks: args.Tasks, Message: fmt.Sprintf("Updated plan with %d tasks", len(args.Tasks))}
	return marshal(out)
}

// AddTaskTool inserts a single task into the existing plan, at an
// optional position, defaulting to the end.
type AddTaskTool struct{}

type addTaskArgs struct {
	Task     string `json:"task" jsonschema:"required,description=A concrete, actionable task description to add"`
	Position *int   `json:"position,omitempty" jsonschema:"description=Optional 0-based index to insert at; appended to the end if omitted"`
}

func (AddTaskTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        planning.ToolAddTask,
		Description: "Add a single task to the existing plan.",
		Schema:      tools.ReflectSchema(addTaskArgs{}),
	}
}

func (AddTaskTool) NeedsReplay() bool { return false }

func (AddTaskTool) Execute(_ context.Context, rc tools.RunContext, raw json.RawMessage) (string, error) {
	if !rc.Plan.HasPlan() {
		return "", fmt.Errorf("add_task: %s", planning.ErrNoPlan)
	}
	var args addTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("add_task: %w", err)
	}

	tasks := append([]string(nil), rc.Plan.Tasks...)
	if args.Position != nil {
		pos := *args.Position
		if pos < 0 || pos > len(tasks) {
			return "", fmt.Errorf("add_task: position %d is out of bounds (plan has %d tasks)", pos, len(tasks))
		}
		tasks = append(tasks[:pos:pos], append([]string{args.Task}, tasks[pos:]...)...)
	} else {
		tasks = append(tasks, args.Task)
	}

	out := planOutput{Tasks: tasks, Message: fmt.Sprintf("Added task %q to plan", args.Task)}
	return marshal(out)
}

// CompleteTaskTool marks one task in the plan as completed by index.
type CompleteTaskTool struct{}

type completeTaskArgs struct {
	TaskIndex int `json:"task_index" jsonschema:"required,description=The 0-based index of the task to mark completed"`
}

func (CompleteTaskTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        planning.ToolCompleteTask,
		Description: "Mark a specific task in the plan as completed.",
		Schema:      tools.ReflectSchema(completeTaskArgs{}),
	}
}

func (CompleteTaskTool) NeedsReplay() bool { return false }

func (CompleteTaskTool) Execute(_ context.Context, rc tools.RunContext, raw json.RawMessage) (string, error) {
	if !rc.Plan.HasPlan() {
		return "", fmt.Errorf("complete_task: %s", planning.ErrNoPlan)
	}
	var args completeTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("complete_task: %w", err)
	}
	if args.TaskIndex < 0 || args.TaskIndex >= len(rc.Plan.Tasks) {
		return "", fmt.Errorf("complete_task: task index %d is out of bounds (plan has %d tasks)", args.TaskIndex, len(rc.Plan.Tasks))
	}

	task := rc.Plan.Tasks[args.TaskIndex]
	out := completeOutput{
		Task:           task,
		Message:        fmt.Sprintf("Marked task %d as completed: %q", args.TaskIndex, task),
		CompletedIndex: args.TaskIndex,
	}
	return marshal(out)
}

// GetPlanStatusTool reports the current plan without mutating it.
type GetPlanStatusTool struct{}

type getPlanStatusArgs struct{}

// taskStatus describes one task's completion state in a status report.
type taskStatus struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

type planStatusOutput struct {
	Tasks          []taskStatus `json:"tasks"`
	CompletedCount int          `json:"completed_count"`
	TotalCount     int          `json:"total_count"`
}

func (GetPlanStatusTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        planning.ToolGetPlanStatus,
		Description: "Get the current status of the plan.",
		Schema:      tools.ReflectSchema(getPlanStatusArgs{}),
	}
}

func (GetPlanStatusTool) NeedsReplay() bool { return false }

func (GetPlanStatusTool) Execute(_ context.Context, rc tools.RunContext, raw json.RawMessage) (string, error) {
	if !rc.Plan.HasPlan() {
		return "", fmt.Errorf("get_plan_status: %s", planning.ErrNoPlan)
	}

	statuses := make([]taskStatus, len(rc.Plan.Tasks))
	completed := 0
	for i, desc := range rc.Plan.Tasks {
		done := rc.Plan.CompletedIndexes[i]
		statuses[i] = taskStatus{Description: desc, Completed: done}
		if done {
			completed++
		}
	}

	out := planStatusOutput{Tasks: statuses, CompletedCount: completed, TotalCount: len(statuses)}
	return marshal(out)
}

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("planningtools: marshal result: %w", err)
	}
	return string(data), nil
}

// Register adds every planning tool to r, the way tools.NewDefaultRegistry
// registers its own built-ins.
func Register(r *tools.Registry) error {
	for _, t := range []tools.Tool{
		CreatePlanTool{},
		UpdatePlanTool{},
		AddTaskTool{},
		CompleteTaskTool{},
		GetPlanStatusTool{},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
