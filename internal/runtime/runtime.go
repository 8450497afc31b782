package runtime

import (
	"context"

	"github.com/agentforge/runtime/internal/listener"
)

// Runtime bundles a Handler with a Listener and the EventHandlers
// subscribed to this aggregate type's events (LLM, Tool, Finish, Link,
// …). Start runs the listener to completion; Shutdown is observed
// implicitly when a callback sees a terminal event and stops issuing
// further commands — the listener itself keeps running until its context
// is cancelled or a callback errors.
type Runtime struct {
	Handler  *Handler
	Listener *listener.Listener
}

// New builds a Runtime, registering each handler as a listener callback.
func New(h *Handler, l *listener.Listener, handlers ...EventHandler) *Runtime {
	rt := &Runtime{Handler: h, Listener: l}
	for _, eh := range handlers {
		l.PushCallback(&eventHandlerCallback{handler: h, inner: eh})
	}
	return rt
}

// Start runs the listener loop until ctx is cancelled or a handler
// errors.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Listener.Run(ctx)
}
