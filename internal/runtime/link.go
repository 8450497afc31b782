package runtime

import (
	"context"
	"fmt"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// ForwardFunc translates one event of runtime A into a command for
// runtime B. Returning ok=false declines to forward this event. The
// target id need not already exist — e.g. the planner→worker handoff
// forwards into a brand-new worker aggregate id.
type ForwardFunc func(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event, a *Handler) (targetID string, cmd aggregate.Command, ok bool, err error)

// BackwardFunc is ForwardFunc's mirror, translating a B event back into
// an A command — e.g. resolving the planner's original send_task call
// once the worker reaches Finished.
type BackwardFunc func(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event, b *Handler) (targetID string, cmd aggregate.Command, ok bool, err error)

// Link ties two runtimes together by the pair of translation functions
// above. Metadata.CausationID is threaded from the triggering envelope to
// the synthesized command's commit so cross-aggregate causality survives
// in traces.
type Link struct {
	Forward  ForwardFunc
	Backward BackwardFunc
}

// Attach registers the link's translation as event-handler callbacks on
// both runtimes' listeners: rtA's listener executes Forward against
// rtB.Handler, and rtB's listener executes Backward against rtA.Handler.
// Must be called before either Runtime's Start.
func Attach(rtA, rtB *Runtime, link Link) {
	if link.Forward != nil {
		rtA.Listener.PushCallback(&linkCallback{
			translate: func(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event) (string, aggregate.Command, bool, error) {
				return link.Forward(ctx, env, event, rtA.Handler)
			},
			target: rtB.Handler,
			decode: rtA.Handler.DecodeEnvelope,
		})
	}
	if link.Backward != nil {
		rtB.Listener.PushCallback(&linkCallback{
			translate: func(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event) (string, aggregate.Command, bool, error) {
				return link.Backward(ctx, env, event, rtB.Handler)
			},
			target: rtA.Handler,
			decode: rtB.Handler.DecodeEnvelope,
		})
	}
}

type linkCallback struct {
	translate func(ctx context.Context, env eventsourcing.Envelope, event aggregate.Event) (targetID string, cmd aggregate.Command, ok bool, err error)
	target    *Handler
	decode    func(eventsourcing.Envelope) (aggregate.Event, error)
}

func (c *linkCallback) Process(ctx context.Context, env eventsourcing.Envelope) error {
	event, err := c.decode(env)
	if err != nil {
		return fmt.Errorf("link: decode source envelope: %w", err)
	}

	targetID, cmd, ok, err := c.translate(ctx, env, event)
	if err != nil {
		return fmt.Errorf("link: translate %s/%s@%d: %w", env.AggregateType, env.AggregateID, env.Sequence, err)
	}
	if !ok {
		return nil
	}

	meta := eventsourcing.Metadata{CausationID: fmt.Sprintf("%s/%s@%d", env.AggregateType, env.AggregateID, env.Sequence)}
	if env.Metadata.CorrelationID != "" {
		meta.CorrelationID = env.Metadata.CorrelationID
	}

	if _, err := c.target.Execute(ctx, targetID, cmd, meta); err != nil {
		return fmt.Errorf("link: execute on %s/%s: %w", c.target.AggregateType, targetID, err)
	}
	return nil
}
