package replaytape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/llmclient"
	"github.com/agentforge/runtime/internal/tools"
)

var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTape_AddTurnAssignsIndex(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "hi"}})
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "there"}})

	require.Equal(t, 2, tape.TotalTurns())
	turn, ok := tape.GetTurn(1)
	require.True(t, ok)
	assert.Equal(t, 1, turn.Index)
	assert.Equal(t, "there", turn.Response.Content)

	_, ok = tape.GetTurn(5)
	assert.False(t, ok)
}

func TestTape_ToolRunsByTurn(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddToolRun(ToolRun{TurnIndex: 0, Call: aggregate.ToolCall{ID: "c1", Name: "bash"}, Result: "ok"})
	tape.AddToolRun(ToolRun{TurnIndex: 0, Call: aggregate.ToolCall{ID: "c2", Name: "write_file"}, Result: "ok"})
	tape.AddToolRun(ToolRun{TurnIndex: 1, Call: aggregate.ToolCall{ID: "c3", Name: "done"}, Result: "done"})

	require.Equal(t, 3, tape.TotalToolRuns())
	assert.Len(t, tape.GetToolRuns(0), 2)
	assert.Len(t, tape.GetToolRuns(1), 1)
	assert.Len(t, tape.GetToolRuns(2), 0)
}

func TestTape_MarshalUnmarshalRoundTrip(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.Model = "claude-3-5-sonnet"
	tape.SystemPrompt = "you are helpful"
	tape.AddTurn(Turn{
		Request:  llmclient.CompletionRequest{Model: "claude-3-5-sonnet"},
		Response: aggregate.CompletionResponse{Content: "hi", FinishReason: aggregate.FinishStop},
		Duration: 2 * time.Second,
	})
	tape.AddToolRun(ToolRun{TurnIndex: 0, Call: aggregate.ToolCall{ID: "c1", Name: "bash"}, Result: "ok"})

	data, err := tape.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, tape.Model, restored.Model)
	assert.Equal(t, tape.TotalTurns(), restored.TotalTurns())
	assert.Equal(t, tape.TotalToolRuns(), restored.TotalToolRuns())
	assert.Equal(t, tape.Turns[0].Response.Content, restored.Turns[0].Response.Content)
}

func TestTape_Clone_IsIndependent(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "original"}})

	clone := tape.Clone()
	clone.Turns[0].Response.Content = "mutated"

	assert.Equal(t, "original", tape.Turns[0].Response.Content)
	assert.Equal(t, "mutated", clone.Turns[0].Response.Content)
}

func TestTape_Summary(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.Model = "gpt-4o"
	tape.AddTurn(Turn{})
	tape.AddTurn(Turn{})
	tape.AddToolRun(ToolRun{TurnIndex: 0})

	summary := tape.Summary()
	assert.Equal(t, 2, summary.TurnCount)
	assert.Equal(t, 1, summary.ToolRunCount)
	assert.Equal(t, "gpt-4o", summary.Model)
}

type stubProvider struct {
	responses []aggregate.CompletionResponse
	errs      []error
	call      int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, req llmclient.CompletionRequest) (aggregate.CompletionResponse, error) {
	idx := s.call
	s.call++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return aggregate.CompletionResponse{}, s.errs[idx]
	}
	return s.responses[idx], nil
}

func TestRecorder_RecordsTurnsFromUnderlyingProvider(t *testing.T) {
	provider := &stubProvider{responses: []aggregate.CompletionResponse{
		{Content: "hello world", FinishReason: aggregate.FinishStop},
	}}
	rec := NewRecorder(provider, fixedTime).WithModel("stub-model")

	resp, err := rec.Complete(context.Background(), llmclient.CompletionRequest{Model: "stub-model"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Content)

	tape := rec.Tape()
	require.Equal(t, 1, tape.TotalTurns())
	turn, _ := tape.GetTurn(0)
	assert.Equal(t, "hello world", turn.Response.Content)
}

func TestRecorder_DoesNotRecordFailedCalls(t *testing.T) {
	provider := &stubProvider{
		responses: []aggregate.CompletionResponse{{}},
		errs:      []error{errors.New("boom")},
	}
	rec := NewRecorder(provider, fixedTime)

	_, err := rec.Complete(context.Background(), llmclient.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 0, rec.Tape().TotalTurns())
}

func TestRecorder_RecordToolRun(t *testing.T) {
	rec := NewRecorder(&stubProvider{}, fixedTime)
	rec.RecordToolRun(0, aggregate.ToolCall{ID: "c1", Name: "bash"}, "ok", nil, 10*time.Millisecond)
	rec.RecordToolRun(0, aggregate.ToolCall{ID: "c2", Name: "rm_file"}, "", errors.New("missing"), time.Millisecond)

	tape := rec.Tape()
	require.Equal(t, 2, tape.TotalToolRuns())
	assert.Equal(t, "ok", tape.ToolRuns[0].Result)
	assert.Equal(t, "missing", tape.ToolRuns[1].Error)
}

func TestReplayer_ReplaysRecordedTurnsInOrder(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "first"}})
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "second"}})

	replayer := NewReplayer(tape)

	resp, err := replayer.Complete(context.Background(), llmclient.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = replayer.Complete(context.Background(), llmclient.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	_, err = replayer.Complete(context.Background(), llmclient.CompletionRequest{})
	assert.ErrorIs(t, err, ErrTapeExhausted)
}

func TestReplayer_StrictModeRecordsMismatch(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddTurn(Turn{Request: llmclient.CompletionRequest{Model: "expected-model"}, Response: aggregate.CompletionResponse{Content: "ok"}})

	replayer := NewReplayer(tape).WithMode(Strict)
	_, err := replayer.Complete(context.Background(), llmclient.CompletionRequest{Model: "different-model"})
	require.NoError(t, err)

	mismatches := replayer.Mismatches()
	require.Len(t, mismatches, 1)
	assert.Equal(t, "model", mismatches[0].Field)
}

func TestReplayer_Reset(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "first"}})

	replayer := NewReplayer(tape)
	_, err := replayer.Complete(context.Background(), llmclient.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, replayer.CurrentTurn())

	replayer.Reset()
	assert.Equal(t, 0, replayer.CurrentTurn())
}

func TestReplayTool_ReturnsRecordedResult(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "ok"}})
	tape.AddToolRun(ToolRun{TurnIndex: 0, Call: aggregate.ToolCall{ID: "c1", Name: "bash"}, Result: "file written"})

	replayer := NewReplayer(tape)
	_, err := replayer.Complete(context.Background(), llmclient.CompletionRequest{})
	require.NoError(t, err)

	def := tools.Definition{Name: "bash", Description: "replayed tool", Schema: []byte(`{"type":"object"}`)}
	tool := replayer.NewReplayTool("bash", def)
	result, err := tool.Execute(context.Background(), tools.RunContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "file written", result)
	assert.False(t, tool.NeedsReplay())
}

func TestReplayTool_MismatchedNameErrors(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddTurn(Turn{Response: aggregate.CompletionResponse{Content: "ok"}})
	tape.AddToolRun(ToolRun{TurnIndex: 0, Call: aggregate.ToolCall{Name: "bash"}, Result: "ok"})

	replayer := NewReplayer(tape)
	_, err := replayer.Complete(context.Background(), llmclient.CompletionRequest{})
	require.NoError(t, err)

	def := tools.Definition{Name: "rm_file", Schema: []byte(`{"type":"object"}`)}
	tool := replayer.NewReplayTool("rm_file", def)
	_, err = tool.Execute(context.Background(), tools.RunContext{}, nil)
	assert.ErrorIs(t, err, ErrToolMismatch)
}

func TestToolRegistry_DiscoversDistinctToolsFromTape(t *testing.T) {
	tape := NewTape(fixedTime)
	tape.AddToolRun(ToolRun{TurnIndex: 0, Call: aggregate.ToolCall{Name: "bash"}, Result: "ok"})
	tape.AddToolRun(ToolRun{TurnIndex: 0, Call: aggregate.ToolCall{Name: "write_file"}, Result: "ok"})
	tape.AddToolRun(ToolRun{TurnIndex: 1, Call: aggregate.ToolCall{Name: "bash"}, Result: "ok"})

	replayer := NewReplayer(tape)
	registry := ToolRegistry(replayer, nil)

	_, ok := registry.Get("bash")
	assert.True(t, ok)
	_, ok = registry.Get("write_file")
	assert.True(t, ok)
}
