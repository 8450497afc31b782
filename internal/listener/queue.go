// Package listener implements the Polling Queue & Listener (C2): a
// best-effort wake broadcast layered over pkg/eventsourcing.Store, plus a
// per-aggregate-type Listener that fans new envelopes out to a set of
// callbacks in strict sequence order.
//
// Grounded on the original Rust dabgent_mq/src/listener.rs: PollingQueue
// wraps commit() to publish a Wake after every successful append, and
// Listener multiplexes that signal against a periodic poll tick so that a
// dropped wake never causes missed delivery, only added latency.
package listener

import (
	"context"
	"sync"

	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// Wake is a best-effort notification that an aggregate has new events.
// Lost wakes are tolerated: the periodic scan in Listener.Run is the
// correctness backstop.
type Wake struct {
	AggregateType   string
	AggregateID     string
	CurrentSequence int64
}

const wakeChannelSize = 100

// PollingQueue wraps a Store, broadcasting a Wake after every successful
// Commit. Multiple Listeners may Subscribe independently; each gets its
// own buffered channel so a slow subscriber cannot stall others.
type PollingQueue struct {
	eventsourcing.Store

	mu   sync.Mutex
	subs map[int]chan Wake
	next int
}

// NewPollingQueue wraps store with wake broadcasting.
func NewPollingQueue(store eventsourcing.Store) *PollingQueue {
	return &PollingQueue{
		Store: store,
		subs:  make(map[int]chan Wake),
	}
}

// Commit appends events through the wrapped store, then publishes a Wake
// for every envelope produced. Publishing is fire-and-forget: a
// subscriber whose buffer is full simply misses this wake.
func (q *PollingQueue) Commit(ctx context.Context, aggregateType, aggregateID string, currentSequence int64, events []eventsourcing.EventData, meta eventsourcing.Metadata) ([]eventsourcing.Envelope, error) {
	envs, err := q.Store.Commit(ctx, aggregateType, aggregateID, currentSequence, events, meta)
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return envs, nil
	}
	q.publish(Wake{
		AggregateType:   aggregateType,
		AggregateID:     aggregateID,
		CurrentSequence: envs[len(envs)-1].Sequence,
	})
	return envs, nil
}

// Subscribe registers a new wake receiver. The returned cancel func must
// be called once the subscriber is done to release its channel.
func (q *PollingQueue) Subscribe() (<-chan Wake, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.next
	q.next++
	ch := make(chan Wake, wakeChannelSize)
	q.subs[id] = ch

	return ch, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if c, ok := q.subs[id]; ok {
			delete(q.subs, id)
			close(c)
		}
	}
}

func (q *PollingQueue) publish(w Wake) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subs {
		select {
		case ch <- w:
		default:
			// Buffer full: drop the wake. The poll tick will still
			// discover this aggregate's advance.
		}
	}
}
