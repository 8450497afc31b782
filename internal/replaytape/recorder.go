package replaytape

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/llmclient"
)

// Recorder wraps a llmclient.Provider, recording every request/response
// pair it sees onto a Tape. It implements llmclient.Provider itself, so
// it can be dropped into an llmhandler.Config in place of the real
// provider with no other wiring changes.
type Recorder struct {
	provider llmclient.Provider
	mu       sync.Mutex
	tape     *Tape
	turnIdx  int
}

// NewRecorder wraps provider, recording onto a fresh tape stamped with
// createdAt.
func NewRecorder(provider llmclient.Provider, createdAt time.Time) *Recorder {
	tape := NewTape(createdAt)
	tape.Metadata["provider"] = provider.Name()
	return &Recorder{provider: provider, tape: tape}
}

// WithModel records the model used, for Summary/metadata purposes.
func (r *Recorder) WithModel(model string) *Recorder {
	r.tape.Model = model
	return r
}

// WithSystemPrompt records the system prompt used.
func (r *Recorder) WithSystemPrompt(system string) *Recorder {
	r.tape.SystemPrompt = system
	return r
}

// Name implements llmclient.Provider.
func (r *Recorder) Name() string { return "recorder:" + r.provider.Name() }

// Complete implements llmclient.Provider, forwarding to the wrapped
// provider and recording the request/response/duration as a Turn.
func (r *Recorder) Complete(ctx context.Context, req llmclient.CompletionRequest) (aggregate.CompletionResponse, error) {
	r.mu.Lock()
	turnIndex := r.turnIdx
	r.turnIdx++
	r.mu.Unlock()

	start := time.Now()
	resp, err := r.provider.Complete(ctx, req)
	duration := time.Since(start)
	if err != nil {
		return resp, err
	}

	r.mu.Lock()
	r.tape.AddTurn(Turn{Index: turnIndex, Request: req, Response: resp, Duration: duration})
	r.mu.Unlock()

	return resp, nil
}

// RecordToolRun appends a tool run observed for the given turn. Callers
// in the toolhandler wrap each tools.Tool.Execute call with timing and
// report the outcome here, since tools.Tool itself carries no turn-index
// context.
func (r *Recorder) RecordToolRun(turnIndex int, call aggregate.ToolCall, result string, err error, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := ToolRun{TurnIndex: turnIndex, Call: call, Result: result, Duration: duration}
	if err != nil {
		run.Error = err.Error()
	}
	r.tape.AddToolRun(run)
}

// Tape returns a snapshot of the tape recorded so far.
func (r *Recorder) Tape() *Tape {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tape.Clone()
}

// Reset clears the recording and starts fresh, stamped with createdAt.
func (r *Recorder) Reset(createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tape = NewTape(createdAt)
	r.tape.Metadata["provider"] = r.provider.Name()
	r.turnIdx = 0
}
