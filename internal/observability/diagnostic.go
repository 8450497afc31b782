// Package observability provides diagnostic event types and emission, used
// to drive a live event stream for tools like agentrtctl's watch command.
// The emitter mechanism (atomic sequence counter, panic-safe listener
// fan-out) is grounded on the teacher's internal/observability/diagnostic.go;
// the event vocabulary is redrawn around aggregates, commits, and the
// listener rather than channels/webhooks/sessions.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// AggregateRunState represents the lifecycle state of an agent aggregate.
type AggregateRunState string

const (
	AggregateStateIdle       AggregateRunState = "idle"
	AggregateStateProcessing AggregateRunState = "processing"
	AggregateStateWaiting    AggregateRunState = "waiting"
	AggregateStateTerminal   AggregateRunState = "terminal"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	EventTypeModelUsage          DiagnosticEventType = "model.usage"
	EventTypeCommit              DiagnosticEventType = "store.commit"
	EventTypeCommitConflict      DiagnosticEventType = "store.commit_conflict"
	EventTypeListenerTaskEnqueue DiagnosticEventType = "listener.task_enqueue"
	EventTypeListenerTaskDequeue DiagnosticEventType = "listener.task_dequeue"
	EventTypeAggregateState      DiagnosticEventType = "aggregate.state"
	EventTypeAggregateStuck      DiagnosticEventType = "aggregate.stuck"
	EventTypeRunAttempt          DiagnosticEventType = "run.attempt"
	EventTypeDiagnosticHeartbeat DiagnosticEventType = "diagnostic.heartbeat"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// ModelUsageEvent tracks token usage for an LLM request.
type ModelUsageEvent struct {
	DiagnosticEvent
	AggregateID string          `json:"aggregate_id,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	Usage       UsageDetails    `json:"usage"`
	Context     *ContextDetails `json:"context,omitempty"`
	CostUSD     float64         `json:"cost_usd,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
}

// UsageDetails contains token usage breakdown.
type UsageDetails struct {
	PromptTokens     int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	Total            int64 `json:"total,omitempty"`
}

// ContextDetails contains context window information.
type ContextDetails struct {
	Limit int64 `json:"limit,omitempty"`
	Used  int64 `json:"used,omitempty"`
}

// CommitEvent tracks a successful event store commit.
type CommitEvent struct {
	DiagnosticEvent
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	FromSequence  int64  `json:"from_sequence"`
	ToSequence    int64  `json:"to_sequence"`
	DurationMs    int64  `json:"duration_ms,omitempty"`
}

// CommitConflictEvent tracks an optimistic-concurrency rejection.
type CommitConflictEvent struct {
	DiagnosticEvent
	AggregateType    string `json:"aggregate_type"`
	AggregateID      string `json:"aggregate_id"`
	ExpectedSequence int64  `json:"expected_sequence"`
	ActualSequence   int64  `json:"actual_sequence"`
}

// ListenerTaskEnqueueEvent tracks a listener scheduling a range to process.
type ListenerTaskEnqueueEvent struct {
	DiagnosticEvent
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	From          int64  `json:"from"`
	To            int64  `json:"to"`
}

// ListenerTaskDequeueEvent tracks a listener finishing a processed range.
type ListenerTaskDequeueEvent struct {
	DiagnosticEvent
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	WaitMs        int64  `json:"wait_ms"`
	DurationMs    int64  `json:"duration_ms"`
}

// AggregateStateEvent tracks an aggregate's lifecycle state transitions.
type AggregateStateEvent struct {
	DiagnosticEvent
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	PrevState     AggregateRunState `json:"prev_state,omitempty"`
	State         AggregateRunState `json:"state"`
	Reason        string            `json:"reason,omitempty"`
}

// AggregateStuckEvent tracks an aggregate that hasn't advanced in longer
// than expected (listener lag exceeding a threshold).
type AggregateStuckEvent struct {
	DiagnosticEvent
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	State         AggregateRunState `json:"state"`
	AgeMs         int64             `json:"age_ms"`
}

// RunAttemptEvent tracks LLM handler retry attempts for a run.
type RunAttemptEvent struct {
	DiagnosticEvent
	AggregateID string `json:"aggregate_id"`
	Provider    string `json:"provider"`
	Attempt     int    `json:"attempt"`
}

// DiagnosticHeartbeatEvent periodically summarizes runtime activity.
type DiagnosticHeartbeatEvent struct {
	DiagnosticEvent
	Commits          CommitStats `json:"commits"`
	ActiveAggregates int         `json:"active_aggregates"`
	Waiting          int         `json:"waiting"`
	Queued           int         `json:"queued"`
}

// CommitStats contains commit statistics.
type CommitStats struct {
	Succeeded int64 `json:"succeeded"`
	Conflicts int64 `json:"conflicts"`
	Errors    int64 `json:"errors"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener for diagnostic events, returning
// an unsubscribe function.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.listeners = append(globalEmitter.listeners, listener)

	idx := len(globalEmitter.listeners) - 1
	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		if idx < len(globalEmitter.listeners) {
			globalEmitter.listeners = append(globalEmitter.listeners[:idx], globalEmitter.listeners[idx+1:]...)
		}
	}
}

func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() { _ = recover() }()
			listener(event)
		}()
	}
}

// EmitModelUsage emits a model usage event.
func EmitModelUsage(e *ModelUsageEvent) {
	e.Type = EventTypeModelUsage
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitCommit emits a successful commit event.
func EmitCommit(e *CommitEvent) {
	e.Type = EventTypeCommit
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitCommitConflict emits an optimistic-concurrency conflict event.
func EmitCommitConflict(e *CommitConflictEvent) {
	e.Type = EventTypeCommitConflict
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitListenerTaskEnqueue emits a listener task-scheduled event.
func EmitListenerTaskEnqueue(e *ListenerTaskEnqueueEvent) {
	e.Type = EventTypeListenerTaskEnqueue
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitListenerTaskDequeue emits a listener task-completed event.
func EmitListenerTaskDequeue(e *ListenerTaskDequeueEvent) {
	e.Type = EventTypeListenerTaskDequeue
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitAggregateState emits an aggregate state transition event.
func EmitAggregateState(e *AggregateStateEvent) {
	e.Type = EventTypeAggregateState
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitAggregateStuck emits an aggregate-stuck event.
func EmitAggregateStuck(e *AggregateStuckEvent) {
	e.Type = EventTypeAggregateStuck
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitRunAttempt emits a run attempt event.
func EmitRunAttempt(e *RunAttemptEvent) {
	e.Type = EventTypeRunAttempt
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDiagnosticHeartbeat emits a diagnostic heartbeat event.
func EmitDiagnosticHeartbeat(e *DiagnosticHeartbeatEvent) {
	e.Type = EventTypeDiagnosticHeartbeat
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}
