package replaytape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/llmclient"
	"github.com/agentforge/runtime/internal/sandbox"
	"github.com/agentforge/runtime/internal/tools"
)

// ErrTapeExhausted indicates the tape has no more turns to replay.
var ErrTapeExhausted = errors.New("replaytape: tape exhausted, no more turns to replay")

// ErrToolNotInTape indicates a tool call has no recorded run left to
// replay for its turn.
var ErrToolNotInTape = errors.New("replaytape: tool call not found in tape")

// ErrToolMismatch indicates the next recorded tool run is for a
// different tool than the one being replayed.
var ErrToolMismatch = errors.New("replaytape: tool call name differs from recorded run")

// Mode controls how strictly the replayer matches incoming requests
// against what was recorded.
type Mode int

const (
	// Strict records a Mismatch for any differing field but still
	// returns the recorded response.
	Strict Mode = iota
	// Loose ignores request differences entirely.
	Loose
)

// Mismatch records a difference between an expected (recorded) and
// actual (replayed) request field.
type Mismatch struct {
	TurnIndex int
	Field     string
	Expected  string
	Actual    string
}

// Replayer implements llmclient.Provider, returning recorded turns from
// a Tape in order with no provider call, letting spec.md's C7 replay
// path and S6 scenario run without a live LLM.
type Replayer struct {
	tape       *Tape
	mode       Mode
	mu         sync.Mutex
	turnIdx    int
	toolRunIdx map[int]int
	mismatches []Mismatch
}

// NewReplayer returns a Replayer over a clone of tape, in Loose mode by
// default.
func NewReplayer(tape *Tape) *Replayer {
	return &Replayer{
		tape:       tape.Clone(),
		mode:       Loose,
		toolRunIdx: make(map[int]int),
	}
}

// WithMode sets the match strictness.
func (r *Replayer) WithMode(mode Mode) *Replayer {
	r.mode = mode
	return r
}

// Name implements llmclient.Provider.
func (r *Replayer) Name() string { return "replayer" }

// Complete implements llmclient.Provider, returning the next recorded
// turn's response in order.
func (r *Replayer) Complete(ctx context.Context, req llmclient.CompletionRequest) (aggregate.CompletionResponse, error) {
	r.mu.Lock()
	if r.turnIdx >= len(r.tape.Turns) {
		r.mu.Unlock()
		return aggregate.CompletionResponse{}, ErrTapeExhausted
	}
	turn := r.tape.Turns[r.turnIdx]
	current := r.turnIdx
	r.turnIdx++
	r.mu.Unlock()

	if r.mode == Strict {
		r.checkMismatch(current, req, turn.Request)
	}

	return turn.Response, nil
}

func (r *Replayer) checkMismatch(turnIndex int, actual, expected llmclient.CompletionRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if expected.Model != "" && actual.Model != expected.Model {
		r.mismatches = append(r.mismatches, Mismatch{
			TurnIndex: turnIndex, Field: "model",
			Expected: expected.Model, Actual: actual.Model,
		})
	}
	if len(actual.Messages) != len(expected.Messages) {
		r.mismatches = append(r.mismatches, Mismatch{
			TurnIndex: turnIndex, Field: "message_count",
			Expected: fmt.Sprintf("%d", len(expected.Messages)),
			Actual:   fmt.Sprintf("%d", len(actual.Messages)),
		})
	}
}

// Mismatches returns every mismatch recorded in Strict mode so far.
func (r *Replayer) Mismatches() []Mismatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mismatch{}, r.mismatches...)
}

// CurrentTurn returns the index of the next turn to be replayed.
func (r *Replayer) CurrentTurn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turnIdx
}

// Reset rewinds the replayer to the first turn.
func (r *Replayer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turnIdx = 0
	r.toolRunIdx = make(map[int]int)
	r.mismatches = nil
}

// nextToolRun returns the next unconsumed tool run recorded for
// turnIndex, advancing the replayer's per-turn cursor.
func (r *Replayer) nextToolRun(turnIndex int) (ToolRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := r.tape.GetToolRuns(turnIndex)
	idx := r.toolRunIdx[turnIndex]
	if idx >= len(runs) {
		return ToolRun{}, false
	}
	r.toolRunIdx[turnIndex] = idx + 1
	return runs[idx], true
}

// ReplayTool is a tools.Tool that returns recorded results instead of
// acting on a sandbox, letting spec.md's C7 replay path re-run a tool
// call's recorded outcome rather than its live effect when live
// re-execution is undesired (e.g. a read-only or external tool being
// exercised in a replay-only test harness).
type ReplayTool struct {
	replayer *Replayer
	name     string
	def      tools.Definition
}

var _ tools.Tool = (*ReplayTool)(nil)

// NewReplayTool returns a ReplayTool that serves recorded runs of name
// from replayer, advertising def as its (ignored, replay never
// validates against it) schema.
func (r *Replayer) NewReplayTool(name string, def tools.Definition) *ReplayTool {
	return &ReplayTool{replayer: r, name: name, def: def}
}

// Definition implements tools.Tool.
func (t *ReplayTool) Definition() tools.Definition { return t.def }

// NeedsReplay implements tools.Tool. A ReplayTool never needs to be
// replayed again; it *is* the replay.
func (t *ReplayTool) NeedsReplay() bool { return false }

// Execute implements tools.Tool, returning the next recorded run for
// this tool's turn rather than touching rc's sandbox at all.
func (t *ReplayTool) Execute(ctx context.Context, rc tools.RunContext, args json.RawMessage) (string, error) {
	turnIndex := t.replayer.CurrentTurn() - 1
	if turnIndex < 0 {
		turnIndex = 0
	}

	run, ok := t.replayer.nextToolRun(turnIndex)
	if !ok {
		return "", fmt.Errorf("%w: %s at turn %d", ErrToolNotInTape, t.name, turnIndex)
	}
	if run.Call.Name != t.name {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrToolMismatch, t.name, run.Call.Name)
	}
	if run.Error != "" {
		return "", errors.New(run.Error)
	}
	return run.Result, nil
}

// ToolRegistry builds a tools.Registry of ReplayTool entries discovered
// from a Replayer's tape, one per distinct recorded tool name, so a
// replay-only test can hand the toolhandler a registry that never
// touches a real sandbox.
func ToolRegistry(r *Replayer, backend sandbox.ContainerBackend) *tools.Registry {
	registry := tools.NewRegistry()
	seen := make(map[string]bool)
	for _, run := range r.tape.ToolRuns {
		if seen[run.Call.Name] {
			continue
		}
		seen[run.Call.Name] = true
		def := tools.Definition{Name: run.Call.Name, Description: "replayed tool", Schema: []byte(`{"type":"object"}`)}
		_ = registry.Register(r.NewReplayTool(run.Call.Name, def))
	}
	return registry
}
