package aggregate

import "encoding/json"

// ExtensionDecoder reconstructs a per-variant AgentEvt payload from its
// wire bytes during replay. Extensions that define their own events (see
// internal/planner, internal/worker) supply one; agents with no
// extension events may pass nil.
type ExtensionDecoder func(kind string, payload []byte) (interface{}, error)

// Decode reconstructs a concrete Event from its stored event_type and
// JSON payload, the inverse of the EventData encoding performed on
// commit. Shared event types are decoded directly; anything under the
// "agent.extension." namespace is delegated to ext.
func Decode(eventType string, payload []byte, ext ExtensionDecoder) (Event, error) {
	switch eventType {
	case (UserCompletionEvent{}).EventType():
		var e UserCompletionEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil

	case (AgentCompletionEvent{}).EventType():
		var e AgentCompletionEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil

	case (ToolCallsEvent{}).EventType():
		var e ToolCallsEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil

	case (ToolResultsEvent{}).EventType():
		var e ToolResultsEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil

	case (ShutdownEvent{}).EventType():
		return ShutdownEvent{}, nil

	default:
		kind, ok := stripExtensionPrefix(eventType)
		if !ok {
			return nil, &Error{Kind: ErrKindInvalidState}
		}
		var wire struct {
			Inner json.RawMessage `json:"inner"`
		}
		if err := json.Unmarshal(payload, &wire); err != nil {
			return nil, err
		}
		inner := interface{}(nil)
		if ext != nil {
			decoded, err := ext(kind, wire.Inner)
			if err != nil {
				return nil, err
			}
			inner = decoded
		}
		return AgentEvt{Kind: kind, Inner: inner}, nil
	}
}

const extensionPrefix = "agent.extension."

func stripExtensionPrefix(eventType string) (string, bool) {
	if len(eventType) <= len(extensionPrefix) || eventType[:len(extensionPrefix)] != extensionPrefix {
		return "", false
	}
	return eventType[len(extensionPrefix):], true
}
