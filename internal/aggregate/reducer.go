package aggregate

import "sort"

// Handle is the shared reducer (handle_shared in spec terms): it maps a
// Command against the current state to the Events it produces, or an
// Error. It never mutates state directly — Apply does that, driven by the
// returned events, so that Handle's output is exactly what gets persisted
// and folded.
func Handle(state *AgentState, cmd Command) ([]Event, error) {
	switch c := cmd.(type) {
	case PutUserMessage:
		if !state.AllToolsReady() {
			return nil, ErrNotReady()
		}
		return []Event{UserCompletionEvent{Content: c.Content}}, nil

	case PutCompletion:
		events := []Event{AgentCompletionEvent{Response: c.Response}}
		if len(c.Response.ToolCalls) > 0 {
			events = append(events, ToolCallsEvent{Calls: c.Response.ToolCalls})
		}
		return events, nil

	case PutToolResults:
		for _, r := range c.Results {
			if _, ok := state.Calls[r.ToolCallID]; !ok {
				return nil, ErrUnexpectedTool(r.ToolCallID)
			}
		}
		events := []Event{ToolResultsEvent{Results: c.Results}}
		if state.wouldBeReady(c.Results) {
			events = append(events, synthesizeUserCompletion(state, c.Results))
		}
		if state.Extension != nil {
			extra, err, handled := state.Extension.Handle(state, cmd)
			if handled && err != nil {
				return nil, WrapExtensionError(err)
			}
			events = append(events, extra...)
		}
		return events, nil

	case ShutdownCmd:
		return []Event{ShutdownEvent{}}, nil

	case AgentCmd:
		if state.Extension == nil {
			return nil, nil
		}
		extra, err, handled := state.Extension.Handle(state, cmd)
		if handled && err != nil {
			return nil, WrapExtensionError(err)
		}
		return extra, nil

	default:
		return nil, &Error{Kind: ErrKindInvalidState}
	}
}

// synthesizeUserCompletion builds the UserCompletion event emitted
// alongside ToolResults when the merged result set resolves every
// outstanding call. Its content is the concatenation of every resolved
// result's content, in call order, matching how a conversational turn
// folds tool output back into the dialogue for the next completion
// request.
func synthesizeUserCompletion(state *AgentState, results []ToolResult) Event {
	byID := make(map[string]ToolResult, len(results))
	for _, r := range results {
		byID[r.ToolCallID] = r
	}

	ids := make([]string, 0, len(state.Calls))
	for id := range state.Calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var content string
	for _, id := range ids {
		c := state.Calls[id]
		if r, ok := byID[id]; ok {
			content += r.Content
		} else if c.Result != nil {
			content += c.Result.Content
		}
	}
	return UserCompletionEvent{Content: content}
}

// Apply is the shared folder (apply_shared): it mutates state in place to
// reflect one event, then defers to the extension for events it doesn't
// recognise.
func Apply(state *AgentState, event Event) {
	switch e := event.(type) {
	case UserCompletionEvent:
		state.Messages = append(state.Messages, Turn{Role: TurnUser, Content: e.Content})
		state.Calls = make(map[string]*CallState)

	case ToolCallsEvent:
		for _, call := range e.Calls {
			state.Calls[call.ID] = &CallState{Call: call}
		}

	case AgentCompletionEvent:
		state.Messages = append(state.Messages, Turn{
			Role:      TurnAssistant,
			Content:   e.Response.Text,
			ToolCalls: e.Response.ToolCalls,
		})

	case ToolResultsEvent:
		for _, r := range e.Results {
			r := r
			if c, ok := state.Calls[r.ToolCallID]; ok {
				c.Result = &r
				c.Resolved = true
			}
		}

	case ShutdownEvent:
		// Terminal; no further state change beyond what callers observe
		// via IsTerminal.

	default:
		// Extension events fall through to the per-variant apply below.
	}

	if state.Extension != nil {
		state.Extension.Apply(state, event)
	}
}

// Fold replays a history of events onto a fresh state, the aggregate's
// load path (load_aggregate in spec terms): fold(apply, initial, events).
func Fold(ext Extension, events []Event) *AgentState {
	state := NewAgentState(ext)
	for _, e := range events {
		Apply(state, e)
	}
	return state
}
