// Package runtime implements the Runtime & Link layer (C4): Handler is
// the write path over one aggregate type, Runtime bundles a Handler with
// a Listener and its event-handler callbacks, and Link translates events
// between two Runtimes to implement agent-to-agent handoff (see
// internal/planner and internal/worker for the concrete S4 scenario).
package runtime

import (
	"context"
	"fmt"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/listener"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// Handler is the thin, stateless write-path facade over C1 plus a
// per-variant Extension factory: load the aggregate, run the shared
// reducer (with the variant's override), commit the result.
//
// Services (LLM clients, sandbox manager, etc.) are not threaded through
// Handler generically — each concrete Extension captures the services it
// needs as struct fields, the way the teacher's handler types close over
// their dependencies rather than accepting a generic parameter bag.
type Handler struct {
	Store            eventsourcing.Store
	AggregateType    string
	NewExtension     func() aggregate.Extension
	ExtensionDecoder aggregate.ExtensionDecoder
}

// NewHandler constructs a Handler for aggregateType. newExtension must
// return a fresh, default-constructed Extension each call (Fold replays
// state into it from scratch).
func NewHandler(store eventsourcing.Store, aggregateType string, newExtension func() aggregate.Extension, decoder aggregate.ExtensionDecoder) *Handler {
	return &Handler{
		Store:            store,
		AggregateType:    aggregateType,
		NewExtension:     newExtension,
		ExtensionDecoder: decoder,
	}
}

// Load folds every persisted event for aggregateID into a fresh state and
// returns it alongside the current sequence, the load_aggregate
// operation from spec.md §4.1.
func (h *Handler) Load(ctx context.Context, aggregateID string) (*aggregate.AgentState, int64, error) {
	envs, err := h.Store.LoadEvents(ctx, h.AggregateType, aggregateID)
	if err != nil {
		return nil, 0, fmt.Errorf("runtime: load events for %s/%s: %w", h.AggregateType, aggregateID, err)
	}

	state := aggregate.NewAgentState(h.NewExtension())
	for _, env := range envs {
		event, err := aggregate.Decode(env.EventType, env.Payload, h.ExtensionDecoder)
		if err != nil {
			return nil, 0, fmt.Errorf("runtime: decode event %s@%d: %w", env.EventType, env.Sequence, err)
		}
		aggregate.Apply(state, event)
	}
	return state, int64(len(envs)), nil
}

// Execute loads the aggregate, runs cmd through the shared reducer, and
// commits the resulting events. It returns the committed envelopes so
// callers (and Link) can react to what was actually persisted.
func (h *Handler) Execute(ctx context.Context, aggregateID string, cmd aggregate.Command, meta eventsourcing.Metadata) ([]eventsourcing.Envelope, error) {
	state, seq, err := h.Load(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	events, err := aggregate.Handle(state, cmd)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	data := make([]eventsourcing.EventData, len(events))
	for i, e := range events {
		data[i] = e
	}

	envs, err := h.Store.Commit(ctx, h.AggregateType, aggregateID, seq, data, meta)
	if err != nil {
		return nil, fmt.Errorf("runtime: commit %s/%s: %w", h.AggregateType, aggregateID, err)
	}
	return envs, nil
}

// DecodeEnvelope exposes aggregate.Decode bound to this handler's
// extension decoder, for callbacks that receive a raw Envelope from the
// listener and need the typed Event back.
func (h *Handler) DecodeEnvelope(env eventsourcing.Envelope) (aggregate.Event, error) {
	return aggregate.Decode(env.EventType, env.Payload, h.ExtensionDecoder)
}

// eventHandlerCallback adapts an EventHandler (which needs the Handler to
// issue further commands) to the listener.Callback interface.
type eventHandlerCallback struct {
	handler *Handler
	inner   EventHandler
}

// EventHandler processes one decoded event with access to the owning
// Handler, so it may issue further commands (e.g. the LLM handler issuing
// PutCompletion after observing UserCompletion).
type EventHandler interface {
	Process(ctx context.Context, h *Handler, env eventsourcing.Envelope, event aggregate.Event) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(ctx context.Context, h *Handler, env eventsourcing.Envelope, event aggregate.Event) error

func (f EventHandlerFunc) Process(ctx context.Context, h *Handler, env eventsourcing.Envelope, event aggregate.Event) error {
	return f(ctx, h, env, event)
}

func (c *eventHandlerCallback) Process(ctx context.Context, env eventsourcing.Envelope) error {
	event, err := c.handler.DecodeEnvelope(env)
	if err != nil {
		return err
	}
	return c.inner.Process(ctx, c.handler, env, event)
}

var _ listener.Callback = (*eventHandlerCallback)(nil)
