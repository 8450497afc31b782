// Package replaytape records and replays agent/provider/tool interactions
// to JSON, letting end-to-end tests exercise C5 (LLM Handler) and C7
// (Finish/replay) without a live provider or sandbox.
//
// Grounded on the teacher's internal/agent/tape package (Tape/Turn/
// ToolRun/Recorder/Replayer), adapted from its streaming
// CompletionChunk model to this runtime's synchronous
// llmclient.Provider.Complete and RunContext-based tools.Tool, since C5's
// retry wrapper needs one atomic response per attempt rather than an
// in-flight stream to resume.
package replaytape

import (
	"encoding/json"
	"time"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/llmclient"
)

// Tape records a complete conversation with an agent: every provider
// turn and every tool invocation, in the order they happened.
type Tape struct {
	Version      string         `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Turns        []Turn         `json:"turns"`
	ToolRuns     []ToolRun      `json:"tool_runs"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Turn represents one provider request/response pair.
type Turn struct {
	// Index is the 0-based turn number.
	Index int `json:"index"`

	// Request is the completion request sent to the provider.
	Request llmclient.CompletionRequest `json:"request"`

	// Response is the provider's normalised response.
	Response aggregate.CompletionResponse `json:"response"`

	// Duration is how long the provider call took.
	Duration time.Duration `json:"duration"`
}

// ToolRun represents one tool execution.
type ToolRun struct {
	// TurnIndex is the turn during which this tool was called.
	TurnIndex int `json:"turn_index"`

	// Call is the tool call that triggered this run.
	Call aggregate.ToolCall `json:"call"`

	// Result is the tool's textual result, empty when Error is set.
	Result string `json:"result,omitempty"`

	// Error is any error that occurred, as a string for serialization.
	Error string `json:"error,omitempty"`

	// Duration is how long the tool execution took.
	Duration time.Duration `json:"duration"`
}

// NewTape returns a new empty tape. createdAt is taken as a parameter
// rather than stamped with time.Now so tapes stay byte-for-byte
// reproducible in tests that marshal/unmarshal them.
func NewTape(createdAt time.Time) *Tape {
	return &Tape{
		Version:   "1.0",
		CreatedAt: createdAt,
		Turns:     []Turn{},
		ToolRuns:  []ToolRun{},
		Metadata:  make(map[string]any),
	}
}

// AddTurn appends a turn to the tape, assigning its Index.
func (t *Tape) AddTurn(turn Turn) {
	turn.Index = len(t.Turns)
	t.Turns = append(t.Turns, turn)
}

// AddToolRun appends a tool run to the tape.
func (t *Tape) AddToolRun(run ToolRun) {
	t.ToolRuns = append(t.ToolRuns, run)
}

// GetTurn returns the turn at the given index.
func (t *Tape) GetTurn(index int) (*Turn, bool) {
	if index < 0 || index >= len(t.Turns) {
		return nil, false
	}
	return &t.Turns[index], true
}

// GetToolRuns returns every tool run recorded for the given turn, in
// the order they happened.
func (t *Tape) GetToolRuns(turnIndex int) []ToolRun {
	var runs []ToolRun
	for _, run := range t.ToolRuns {
		if run.TurnIndex == turnIndex {
			runs = append(runs, run)
		}
	}
	return runs
}

// TotalTurns returns the number of recorded turns.
func (t *Tape) TotalTurns() int { return len(t.Turns) }

// TotalToolRuns returns the number of recorded tool runs.
func (t *Tape) TotalToolRuns() int { return len(t.ToolRuns) }

// Marshal serializes the tape to indented JSON.
func (t *Tape) Marshal() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Unmarshal deserializes a tape from JSON.
func Unmarshal(data []byte) (*Tape, error) {
	var tape Tape
	if err := json.Unmarshal(data, &tape); err != nil {
		return nil, err
	}
	return &tape, nil
}

// Clone returns a deep copy of the tape, via a marshal/unmarshal
// round-trip so callers can safely hand out a tape-in-progress.
func (t *Tape) Clone() *Tape {
	data, err := t.Marshal()
	if err != nil {
		clone := *t
		clone.Turns = append([]Turn(nil), t.Turns...)
		clone.ToolRuns = append([]ToolRun(nil), t.ToolRuns...)
		return &clone
	}
	clone, err := Unmarshal(data)
	if err != nil {
		clone := *t
		clone.Turns = append([]Turn(nil), t.Turns...)
		clone.ToolRuns = append([]ToolRun(nil), t.ToolRuns...)
		return &clone
	}
	return clone
}

// Summary is a brief overview of a tape's contents, useful for logging
// without dumping the full transcript.
type Summary struct {
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	Model        string    `json:"model,omitempty"`
	TurnCount    int       `json:"turn_count"`
	ToolRunCount int       `json:"tool_run_count"`
}

// Summary returns a Summary of the tape's contents.
func (t *Tape) Summary() Summary {
	return Summary{
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		Model:        t.Model,
		TurnCount:    len(t.Turns),
		ToolRunCount: len(t.ToolRuns),
	}
}
