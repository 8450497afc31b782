package planning

import (
	"testing"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtension_AppliesCreatePlanResult(t *testing.T) {
	ext := NewExtension("agent")
	state := aggregate.NewAgentState(ext)

	aggregate.Apply(state, aggregate.ToolCallsEvent{Calls: []aggregate.ToolCall{{ID: "c1", Name: ToolCreatePlan}}})
	aggregate.Apply(state, aggregate.ToolResultsEvent{Results: []aggregate.ToolResult{
		{ToolCallID: "c1", Content: `{"tasks":["a","b"],"message":"Created plan with 2 tasks"}`},
	}})

	require.True(t, ext.State.HasPlan())
	assert.Equal(t, []string{"a", "b"}, ext.State.Tasks)
	assert.Empty(t, ext.State.CompletedIndexes)
}

func TestExtension_CompleteTaskMarksIndex(t *testing.T) {
	ext := NewExtension("agent")
	state := aggregate.NewAgentState(ext)

	aggregate.Apply(state, aggregate.ToolCallsEvent{Calls: []aggregate.ToolCall{{ID: "c1", Name: ToolCreatePlan}}})
	aggregate.Apply(state, aggregate.ToolResultsEvent{Results: []aggregate.ToolResult{
		{ToolCallID: "c1", Content: `{"tasks":["a","b"]}`},
	}})

	aggregate.Apply(state, aggregate.ToolCallsEvent{Calls: []aggregate.ToolCall{{ID: "c2", Name: ToolCompleteTask}}})
	aggregate.Apply(state, aggregate.ToolResultsEvent{Results: []aggregate.ToolResult{
		{ToolCallID: "c2", Content: `{"task":"b","completed_index":1}`},
	}})

	assert.True(t, ext.State.CompletedIndexes[1])
	assert.False(t, ext.State.CompletedIndexes[0])
}

func TestExtension_IgnoresErrorResults(t *testing.T) {
	ext := NewExtension("agent")
	state := aggregate.NewAgentState(ext)

	aggregate.Apply(state, aggregate.ToolCallsEvent{Calls: []aggregate.ToolCall{{ID: "c1", Name: ToolCreatePlan}}})
	aggregate.Apply(state, aggregate.ToolResultsEvent{Results: []aggregate.ToolResult{
		{ToolCallID: "c1", Content: "boom", IsError: true},
	}})

	assert.False(t, ext.State.HasPlan())
}

func TestExtension_CreatePlanResetsCompletedIndexes(t *testing.T) {
	ext := NewExtension("agent")
	ext.State = State{Tasks: []string{"a"}, CompletedIndexes: map[int]bool{0: true}}
	state := aggregate.NewAgentState(ext)

	aggregate.Apply(state, aggregate.ToolCallsEvent{Calls: []aggregate.ToolCall{{ID: "c1", Name: ToolCreatePlan}}})
	aggregate.Apply(state, aggregate.ToolResultsEvent{Results: []aggregate.ToolResult{
		{ToolCallID: "c1", Content: `{"tasks":["fresh"]}`},
	}})

	assert.Empty(t, ext.State.CompletedIndexes)
	assert.Equal(t, []string{"fresh"}, ext.State.Tasks)
}

func TestSnapshot_ReturnsDefensiveCopy(t *testing.T) {
	ext := NewExtension("agent")
	ext.State = State{Tasks: []string{"a"}, CompletedIndexes: map[int]bool{0: true}}

	snap := ext.Snapshot()
	snap.Tasks[0] = "mutated"
	snap.CompletedIndexes[1] = true

	assert.Equal(t, "a", ext.State.Tasks[0])
	assert.False(t, ext.State.CompletedIndexes[1])
}

func TestSnapshot_NilExtensionReturnsNil(t *testing.T) {
	var ext *Extension
	assert.Nil(t, ext.Snapshot())
}

func TestState_HasPlan(t *testing.T) {
	var nilState *State
	assert.False(t, nilState.HasPlan())

	empty := &State{}
	assert.False(t, empty.HasPlan())

	withPlan := &State{Tasks: []string{"a"}}
	assert.True(t, withPlan.HasPlan())
}
