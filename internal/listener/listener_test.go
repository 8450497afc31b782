package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/runtime/internal/eventlog"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

type recordEvent struct {
	Kind string `json:"kind"`
}

func (e recordEvent) EventType() string    { return e.Kind }
func (e recordEvent) EventVersion() string { return "v1" }

type recordingCallback struct {
	mu   sync.Mutex
	seen []eventsourcing.Envelope
}

func (c *recordingCallback) Process(_ context.Context, env eventsourcing.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, env)
	return nil
}

func (c *recordingCallback) snapshot() []eventsourcing.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]eventsourcing.Envelope, len(c.seen))
	copy(out, c.seen)
	return out
}

func TestListener_DeliversViaWake(t *testing.T) {
	store := eventlog.NewMemoryStore()
	queue := NewPollingQueue(store)
	l := New(queue, "agent").WithPollInterval(time.Hour)

	cb := &recordingCallback{}
	l.PushCallback(cb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = l.Run(ctx) }()

	_, err := queue.Commit(ctx, "agent", "a1", 0, []eventsourcing.EventData{recordEvent{Kind: "one"}}, eventsourcing.Metadata{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "one", cb.snapshot()[0].EventType)
}

func TestListener_DeliversViaPollTickWhenWakeMissed(t *testing.T) {
	store := eventlog.NewMemoryStore()
	queue := NewPollingQueue(store)

	// Commit before the listener subscribes: the wake is never seen by
	// this listener, so only the poll tick can discover it.
	ctx := context.Background()
	_, err := store.Commit(ctx, "agent", "a1", 0, []eventsourcing.EventData{recordEvent{Kind: "one"}}, eventsourcing.Metadata{})
	require.NoError(t, err)

	l := New(queue, "agent").WithPollInterval(10 * time.Millisecond)
	cb := &recordingCallback{}
	l.PushCallback(cb)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestListener_DeliversInSequenceOrderPerAggregate(t *testing.T) {
	store := eventlog.NewMemoryStore()
	queue := NewPollingQueue(store)
	l := New(queue, "agent").WithPollInterval(5 * time.Millisecond)

	cb := &recordingCallback{}
	l.PushCallback(cb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	for _, kind := range []string{"one", "two", "three"} {
		seq, err := store.CurrentSequence(ctx, "agent", "a1")
		require.NoError(t, err)
		_, err = queue.Commit(ctx, "agent", "a1", seq, []eventsourcing.EventData{recordEvent{Kind: kind}}, eventsourcing.Metadata{})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	seen := cb.snapshot()
	assert.Equal(t, "one", seen[0].EventType)
	assert.Equal(t, "two", seen[1].EventType)
	assert.Equal(t, "three", seen[2].EventType)
}

func TestListener_AbortsOnCallbackFailure(t *testing.T) {
	store := eventlog.NewMemoryStore()
	queue := NewPollingQueue(store)
	l := New(queue, "agent").WithPollInterval(5 * time.Millisecond)

	wantErr := errors.New("boom")
	l.PushCallback(CallbackFunc(func(context.Context, eventsourcing.Envelope) error {
		return wantErr
	}))

	ctx := context.Background()
	_, err := queue.Commit(ctx, "agent", "a1", 0, []eventsourcing.EventData{recordEvent{Kind: "one"}}, eventsourcing.Metadata{})
	require.NoError(t, err)

	runErr := l.Run(ctx)
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, wantErr)
}

func TestListener_IgnoresOtherAggregateTypes(t *testing.T) {
	store := eventlog.NewMemoryStore()
	queue := NewPollingQueue(store)
	l := New(queue, "agent").WithPollInterval(time.Hour)

	cb := &recordingCallback{}
	l.PushCallback(cb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	_, err := queue.Commit(ctx, "worker", "w1", 0, []eventsourcing.EventData{recordEvent{Kind: "one"}}, eventsourcing.Metadata{})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, cb.snapshot())
}
