package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// Callback observes one envelope at a time, in strict per-aggregate
// sequence order. A callback that returns an error aborts the Listener's
// Run loop with that error, matching the original's "single callback
// failure kills the listener" contract.
type Callback interface {
	Process(ctx context.Context, env eventsourcing.Envelope) error
}

// CallbackFunc adapts a plain function to Callback.
type CallbackFunc func(ctx context.Context, env eventsourcing.Envelope) error

func (f CallbackFunc) Process(ctx context.Context, env eventsourcing.Envelope) error {
	return f(ctx, env)
}

const defaultPollInterval = time.Second

type pendingRange struct {
	aggregateID string
	from, to    int64
}

// Listener delivers every committed envelope of one aggregateType to a
// set of callbacks, at-least-once and in strict sequence order per
// aggregate id. It owns an in-memory offsets map; restarting a Listener
// re-delivers full history from sequence 0, so callbacks must be
// idempotent.
type Listener struct {
	store         eventsourcing.Store
	aggregateType string
	wakeCh        <-chan Wake
	unsubscribe   func()
	callbacks     []Callback
	pollInterval  time.Duration
	externalTick  <-chan time.Time

	mu      sync.Mutex
	offsets map[string]int64
}

// New returns a Listener for aggregateType, subscribed to queue's wake
// broadcast.
func New(queue *PollingQueue, aggregateType string) *Listener {
	wakeCh, unsubscribe := queue.Subscribe()
	return &Listener{
		store:         queue,
		aggregateType: aggregateType,
		wakeCh:        wakeCh,
		unsubscribe:   unsubscribe,
		offsets:       make(map[string]int64),
		pollInterval:  defaultPollInterval,
	}
}

// WithPollInterval overrides the default 1s poll tick.
func (l *Listener) WithPollInterval(d time.Duration) *Listener {
	l.pollInterval = d
	return l
}

// WithExternalTicker wires an additional rescan trigger alongside the
// built-in poll timer, firing the same full-rescan path every time ch
// receives. cmd/agentrtd uses this to drive rescans off a
// github.com/robfig/cron/v3 schedule instead of (or in addition to) the
// fixed poll interval, for operators who want a coarse "catch up fully"
// cadence distinct from the fast poll tick. A nil or never-firing ch
// (the default) leaves behavior unchanged.
func (l *Listener) WithExternalTicker(ch <-chan time.Time) *Listener {
	l.externalTick = ch
	return l
}

// PushCallback registers a callback. Not safe to call concurrently with
// Run.
func (l *Listener) PushCallback(cb Callback) {
	l.callbacks = append(l.callbacks, cb)
}

// Run drives the listener until ctx is cancelled or a callback errors.
// Cancellation is safe: the store is untouched and offsets are
// in-memory only, so a fresh Listener re-reads history from the start.
func (l *Listener) Run(ctx context.Context) error {
	defer l.unsubscribe()

	tasks := make(chan pendingRange, 64)
	taskErr := make(chan error, 1)
	go l.processTasks(ctx, tasks, taskErr)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-taskErr:
			return err

		case wake, ok := <-l.wakeCh:
			if !ok {
				return nil
			}
			if wake.AggregateType != l.aggregateType {
				continue
			}
			if from, ok := l.processFrom(wake.AggregateID, wake.CurrentSequence); ok {
				if err := l.schedule(ctx, tasks, wake.AggregateID, from, wake.CurrentSequence); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := l.rescanAll(ctx, tasks); err != nil {
				return err
			}

		case <-l.externalTick:
			if err := l.rescanAll(ctx, tasks); err != nil {
				return err
			}
		}
	}
}

// rescanAll loads every aggregate's current sequence and schedules
// delivery for whatever offsets have fallen behind, the full-catch-up
// path both the internal poll ticker and an external trigger (e.g. a
// cron schedule) drive.
func (l *Listener) rescanAll(ctx context.Context, tasks chan<- pendingRange) error {
	candidates, err := l.store.LoadSequenceNums(ctx, l.aggregateType)
	if err != nil {
		return fmt.Errorf("listener: load sequence nums: %w", err)
	}
	for _, c := range candidates {
		if from, ok := l.processFrom(c.AggregateID, c.MaxSequence); ok {
			if err := l.schedule(ctx, tasks, c.AggregateID, from, c.MaxSequence); err != nil {
				return err
			}
		}
	}
	return nil
}

// processFrom reports the offset to scan from if sequence advances past
// what's already been delivered for aggregateID.
func (l *Listener) processFrom(aggregateID string, sequence int64) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.offsets[aggregateID]
	if sequence > current {
		return current, true
	}
	return 0, false
}

func (l *Listener) schedule(ctx context.Context, tasks chan<- pendingRange, aggregateID string, from, to int64) error {
	select {
	case tasks <- pendingRange{aggregateID: aggregateID, from: from, to: to}:
	case <-ctx.Done():
		return ctx.Err()
	}
	l.mu.Lock()
	l.offsets[aggregateID] = to
	l.mu.Unlock()
	return nil
}

// processTasks is the dedicated processor task: ranges are handled
// serially, but within one envelope every callback runs concurrently and
// all must complete before the next envelope is delivered.
func (l *Listener) processTasks(ctx context.Context, tasks <-chan pendingRange, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-tasks:
			if !ok {
				return
			}
			envs, err := l.store.LoadLatestEvents(ctx, l.aggregateType, r.aggregateID, r.from)
			if err != nil {
				errCh <- fmt.Errorf("listener: load latest events: %w", err)
				return
			}
			for _, env := range envs {
				if env.Sequence > r.to {
					break
				}
				if err := l.runCallbacks(ctx, env); err != nil {
					errCh <- err
					return
				}
			}
		}
	}
}

func (l *Listener) runCallbacks(ctx context.Context, env eventsourcing.Envelope) error {
	if len(l.callbacks) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	errs := make([]error, len(l.callbacks))
	for i, cb := range l.callbacks {
		wg.Add(1)
		go func(i int, cb Callback) {
			defer wg.Done()
			errs[i] = cb.Process(ctx, env)
		}(i, cb)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("listener: callback failed on %s/%s@%d: %w",
				env.AggregateType, env.AggregateID, env.Sequence, err)
		}
	}
	return nil
}
