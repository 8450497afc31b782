package planningtools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentforge/runtime/internal/planning"
	"github.com/agentforge/runtime/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_AddsAllPlanningTools(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, Register(r))

	for _, name := range []string{"create_plan", "update_plan", "add_task", "complete_task", "get_plan_status"} {
		_, ok := r.Get(name)
		assert.True(t, ok, name)
	}
}

func TestCreatePlanTool_ReturnsTasksAndMessage(t *testing.T) {
	out, err := CreatePlanTool{}.Execute(context.Background(), tools.RunContext{}, json.RawMessage(`{"tasks":["a","b","c"]}`))
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"a", "b", "c"}, got.Tasks)
	assert.Contains(t, got.Message, "3 tasks")
}

func TestUpdatePlanTool_RequiresExistingPlan(t *testing.T) {
	_, err := UpdatePlanTool{}.Execute(context.Background(), tools.RunContext{}, json.RawMessage(`{"tasks":["x"]}`))
	assert.ErrorContains(t, err, "no plan exists")
}

func TestUpdatePlanTool_ReplacesTasks(t *testing.T) {
	rc := tools.RunContext{Plan: &planning.State{Tasks: []string{"old"}, CompletedIndexes: map[int]bool{}}}
	out, err := UpdatePlanTool{}.Execute(context.Background(), rc, json.RawMessage(`{"tasks":["new1","new2"]}`))
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"new1", "new2"}, got.Tasks)
}

func TestAddTaskTool_AppendsByDefault(t *testing.T) {
	rc := tools.RunContext{Plan: &planning.State{Tasks: []string{"one", "two"}, CompletedIndexes: map[int]bool{}}}
	out, err := AddTaskTool{}.Execute(context.Background(), rc, json.RawMessage(`{"task":"three"}`))
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"one", "two", "three"}, got.Tasks)
}

func TestAddTaskTool_InsertsAtPosition(t *testing.T) {
	rc := tools.RunContext{Plan: &planning.State{Tasks: []string{"one", "three"}, CompletedIndexes: map[int]bool{}}}
	out, err := AddTaskTool{}.Execute(context.Background(), rc, json.RawMessage(`{"task":"two","position":1}`))
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"one", "two", "three"}, got.Tasks)
}

func TestAddTaskTool_RejectsOutOfBoundsPosition(t *testing.T) {
	rc := tools.RunContext{Plan: &planning.State{Tasks: []string{"one"}, CompletedIndexes: map[int]bool{}}}
	_, err := AddTaskTool{}.Execute(context.Background(), rc, json.RawMessage(`{"task":"x","position":5}`))
	assert.ErrorContains(t, err, "out of bounds")
}

func TestCompleteTaskTool_MarksIndexComplete(t *testing.T) {
	rc := tools.RunContext{Plan: &planning.State{Tasks: []string{"one", "two"}, CompletedIndexes: map[int]bool{}}}
	out, err := CompleteTaskTool{}.Execute(context.Background(), rc, json.RawMessage(`{"task_index":1}`))
	require.NoError(t, err)

	var got completeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "two", got.Task)
	assert.Equal(t, 1, got.CompletedIndex)
}

func TestCompleteTaskTool_RejectsOutOfBoundsIndex(t *testing.T) {
	rc := tools.RunContext{Plan: &planning.State{Tasks: []string{"one"}, CompletedIndexes: map[int]bool{}}}
	_, err := CompleteTaskTool{}.Execute(context.Background(), rc, json.RawMessage(`{"task_index":5}`))
	assert.ErrorContains(t, err, "out of bounds")
}

func TestGetPlanStatusTool_WithoutPlanErrors(t *testing.T) {
	_, err := GetPlanStatusTool{}.Execute(context.Background(), tools.RunContext{}, json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "no plan exists")
}

func TestGetPlanStatusTool_ReportsCompletionCounts(t *testing.T) {
	rc := tools.RunContext{Plan: &planning.State{
		Tasks:            []string{"a", "b", "c"},
		CompletedIndexes: map[int]bool{1: true},
	}}
	out, err := GetPlanStatusTool{}.Execute(context.Background(), rc, json.RawMessage(`{}`))
	require.NoError(t, err)

	var got planStatusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 1, got.CompletedCount)
	assert.True(t, got.Tasks[1].Completed)
	assert.False(t, got.Tasks[0].Completed)
}
