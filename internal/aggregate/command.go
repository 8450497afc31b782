package aggregate

// Command is the sum type accepted by Handle. Concrete variants below
// implement it as a marker so callers get compile-time exhaustiveness via
// a type switch in Handle.
type Command interface {
	commandTag()
}

// PutUserMessage submits new user content to the conversation. Rejected
// with ErrNotReady if any tool call is still outstanding.
type PutUserMessage struct {
	Content string
}

func (PutUserMessage) commandTag() {}

// PutCompletion records an LLM completion response against the aggregate.
type PutCompletion struct {
	Response CompletionResponse
}

func (PutCompletion) commandTag() {}

// PutToolResults submits the outcomes of one or more outstanding tool
// calls. Rejected with ErrUnexpectedTool if any result's ToolCallID is not
// tracked in Calls.
type PutToolResults struct {
	Results []ToolResult
}

func (PutToolResults) commandTag() {}

// ShutdownCmd requests a terminal Shutdown event.
type ShutdownCmd struct{}

func (ShutdownCmd) commandTag() {}

// AgentCmd carries a per-variant command, opaque to the shared reducer,
// dispatched to Extension.Handle.
type AgentCmd struct {
	Inner interface{}
}

func (AgentCmd) commandTag() {}

// Event is the sum type produced by Handle and consumed by Apply. Each
// concrete variant also implements eventsourcing.EventData so it can be
// appended to the store directly.
type Event interface {
	EventType() string
	EventVersion() string
}

// UserCompletionEvent records that the conversation gained new user
// content and every outstanding tool call is resolved.
type UserCompletionEvent struct {
	Content string `json:"content"`
}

func (UserCompletionEvent) EventType() string    { return "agent.user_completion" }
func (UserCompletionEvent) EventVersion() string { return "v1" }

// AgentCompletionEvent records an LLM completion response.
type AgentCompletionEvent struct {
	Response CompletionResponse `json:"response"`
}

func (AgentCompletionEvent) EventType() string    { return "agent.completion" }
func (AgentCompletionEvent) EventVersion() string { return "v1" }

// ToolCallsEvent records the set of tool calls an assistant turn
// requested.
type ToolCallsEvent struct {
	Calls []ToolCall `json:"calls"`
}

func (ToolCallsEvent) EventType() string    { return "agent.tool_calls" }
func (ToolCallsEvent) EventVersion() string { return "v1" }

// ToolResultsEvent records the outcomes of one or more tool calls.
type ToolResultsEvent struct {
	Results []ToolResult `json:"results"`
}

func (ToolResultsEvent) EventType() string    { return "agent.tool_results" }
func (ToolResultsEvent) EventVersion() string { return "v1" }

// ShutdownEvent is the shared terminal marker.
type ShutdownEvent struct{}

func (ShutdownEvent) EventType() string    { return "agent.shutdown" }
func (ShutdownEvent) EventVersion() string { return "v1" }

// AgentEvt carries a per-variant event, opaque to the shared layer,
// dispatched to Extension.Apply after apply_shared.
type AgentEvt struct {
	Kind  string      `json:"kind"`
	Inner interface{} `json:"inner"`
}

func (e AgentEvt) EventType() string    { return "agent.extension." + e.Kind }
func (AgentEvt) EventVersion() string   { return "v1" }

// IsTerminal reports whether an event ends the aggregate's lifecycle: a
// shared Shutdown, or an extension event whose Kind names the variant's
// designated finish marker ("finished"). Per spec.md's resolution of the
// ambiguous string-matching convention in the original implementation,
// this runtime uses a typed marker rather than substring matching on
// event_type — callers that need a terminal check should prefer a type
// switch on the concrete event and fall back to IsTerminal only for
// generic listener bookkeeping.
func IsTerminal(e Event) bool {
	switch v := e.(type) {
	case ShutdownEvent:
		return true
	case AgentEvt:
		return v.Kind == "finished"
	default:
		return false
	}
}
