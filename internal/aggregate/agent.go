// Package aggregate implements the Agent Aggregate (C3): a command→events
// reducer over a conversation of user turns, assistant-with-tool-calls
// turns, and synthesized tool-result turns, with strict tool-call
// accounting.
//
// The shared reducer (handle_shared/apply_shared in spec terms) lives here
// as Handle/Apply. A concrete agent variant (see internal/planner,
// internal/worker) supplies an Extension that may override both to add
// domain-specific commands, events, and terminal conditions on top of the
// shared alphabet — mirroring how the teacher's jobs.Store separated a
// generic persistence shape from call-site-specific bookkeeping.
package aggregate

import (
	"fmt"

	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// AggregateType is the stable TYPE tag every Agent aggregate is stored
// under in the event store.
const AggregateType = "agent"

// ToolCall is one tool invocation requested by the assistant in a
// completion response.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments []byte `json:"arguments"`
}

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// FinishReason normalises provider-native completion stop reasons, per
// spec.md §4.5.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishToolUse   FinishReason = "tool_use"
	FinishNone      FinishReason = "none"
)

// FinishOther wraps a provider-specific finish reason that doesn't map to
// one of the well-known constants above.
func FinishOther(raw string) FinishReason { return FinishReason("other:" + raw) }

// CompletionResponse is the normalised shape an LLM provider call produces,
// independent of which SDK served it.
type CompletionResponse struct {
	Text         string       `json:"text,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	OutputTokens int          `json:"output_tokens,omitempty"`
}

// TurnRole distinguishes the three kinds of conversation turn tracked by
// AgentState.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// Turn is one entry in AgentState.Messages.
type Turn struct {
	Role      TurnRole   `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// CallState tracks a single outstanding or resolved tool call.
type CallState struct {
	Call     ToolCall
	Result   *ToolResult
	Resolved bool
}

// AgentState is the canonical aggregate state described in spec.md §3.
type AgentState struct {
	Extension Extension
	Messages  []Turn
	Calls     map[string]*CallState
}

// NewAgentState returns a zero-value state with a fresh Extension, as
// produced by folding an empty event history.
func NewAgentState(ext Extension) *AgentState {
	return &AgentState{
		Extension: ext,
		Calls:     make(map[string]*CallState),
	}
}

// AllToolsReady reports whether every tracked call has a result, the
// gating condition for emitting a new UserCompletion.
func (s *AgentState) AllToolsReady() bool {
	for _, c := range s.Calls {
		if !c.Resolved {
			return false
		}
	}
	return true
}

// wouldBeReady reports whether merging results into the current call set
// would resolve every outstanding call, without mutating state. Used by
// Handle to decide whether PutToolResults should additionally synthesize a
// UserCompletion event.
func (s *AgentState) wouldBeReady(results []ToolResult) bool {
	merged := make(map[string]bool, len(s.Calls))
	for id, c := range s.Calls {
		merged[id] = c.Resolved
	}
	for _, r := range results {
		merged[r.ToolCallID] = true
	}
	for _, resolved := range merged {
		if !resolved {
			return false
		}
	}
	return true
}

// Extension supplies per-variant behavior layered over the shared
// reducer: the type tag, the shapes of extension commands/events/errors
// (opaque to the shared layer, carried as AgentCmd/AgentEvt/AgentErr), and
// optional overrides for Handle and Apply.
//
// A variant that needs no customisation (the common case in tests) can
// embed NoopExtension.
type Extension interface {
	// Type names this agent variant, used for logging/metrics labels and
	// to disambiguate Services lookups when multiple variants share a
	// runtime.
	Type() string

	// Handle is consulted for every PutToolResults command after the
	// shared reducer has computed its own events, and for every Agent
	// command. It may inspect the (possibly already-applied) results and
	// return additional events — e.g. a terminal Finished marker when a
	// designated "done" tool resolves successfully. Returning
	// (nil, nil, false) declines to add anything.
	Handle(state *AgentState, cmd Command) (events []Event, err error, handled bool)

	// Apply runs after the shared apply for any event this extension
	// recognises (event.ExtensionEvent() != nil). It may mutate
	// extension-private bookkeeping, e.g. recording the id of a "done"
	// tool call so the matching result can be detected by Handle.
	Apply(state *AgentState, event Event)
}

// NoopExtension is an Extension that adds nothing, suitable for agents
// whose entire behavior is the shared alphabet.
type NoopExtension struct{ TypeName string }

func (n NoopExtension) Type() string { return n.TypeName }
func (n NoopExtension) Handle(*AgentState, Command) ([]Event, error, bool) {
	return nil, nil, false
}
func (n NoopExtension) Apply(*AgentState, Event) {}

// Error is the shared error taxonomy from spec.md §4.3. Per-variant errors
// must be wrapped via WrapExtensionError.
type Error struct {
	Kind ErrorKind
	// ToolCallID is populated for ErrUnexpectedTool.
	ToolCallID string
	// Cause wraps a per-variant error when Kind == ErrKindExtension.
	Cause error
}

type ErrorKind string

const (
	ErrKindInvalidState  ErrorKind = "invalid_state"
	ErrKindNotReady       ErrorKind = "not_ready"
	ErrKindUnexpectedTool ErrorKind = "unexpected_tool"
	ErrKindExtension      ErrorKind = "extension"
)

func (e *Error) Error() string {
	switch e.Kind {
	case ErrKindNotReady:
		return "agent: not ready: tool calls still outstanding"
	case ErrKindUnexpectedTool:
		return fmt.Sprintf("agent: unexpected tool result for call id %q", e.ToolCallID)
	case ErrKindInvalidState:
		return "agent: invalid state transition"
	case ErrKindExtension:
		return fmt.Sprintf("agent: %v", e.Cause)
	default:
		return "agent: unknown error"
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrNotReady is returned by Handle when PutUserMessage arrives while
// tool calls are still outstanding.
func ErrNotReady() *Error { return &Error{Kind: ErrKindNotReady} }

// ErrUnexpectedTool is returned when a tool result references an
// untracked call id.
func ErrUnexpectedTool(id string) *Error { return &Error{Kind: ErrKindUnexpectedTool, ToolCallID: id} }

// WrapExtensionError lifts a per-variant error into the shared taxonomy.
func WrapExtensionError(cause error) *Error { return &Error{Kind: ErrKindExtension, Cause: cause} }
