// Package eventlog provides Store backends for pkg/eventsourcing: an
// in-memory map for tests, and SQL-backed stores for Postgres/CockroachDB
// and SQLite over the reference schema in spec.md §6.
//
// The in-memory backend mirrors the mutex-guarded map store pattern used
// throughout the teacher codebase (internal/jobs/store.go's MemoryStore).
package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/runtime/pkg/eventsourcing"
)

type aggregateKey struct {
	aggregateType string
	aggregateID   string
}

// MemoryStore keeps events in memory, guarded by a single RWMutex. It is
// the default backend for unit tests and for single-process deployments
// that don't need durability across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[aggregateKey][]eventsourcing.Envelope
	order    []aggregateKey // insertion order, for stable LoadSequenceNums output
}

// NewMemoryStore returns an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[aggregateKey][]eventsourcing.Envelope),
	}
}

// Commit implements eventsourcing.Store.
func (s *MemoryStore) Commit(ctx context.Context, aggregateType, aggregateID string, currentSequence int64, events []eventsourcing.EventData, meta eventsourcing.Metadata) ([]eventsourcing.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := aggregateKey{aggregateType, aggregateID}
	existing := s.events[key]
	actual := int64(len(existing))
	if actual != currentSequence {
		return nil, &eventsourcing.ErrOptimisticConcurrency{
			AggregateType:    aggregateType,
			AggregateID:      aggregateID,
			ExpectedSequence: currentSequence,
			ActualSequence:   actual,
		}
	}

	if _, ok := s.events[key]; !ok {
		s.order = append(s.order, key)
	}

	now := time.Now().UTC()
	out := make([]eventsourcing.Envelope, 0, len(events))
	for i, e := range events {
		payload, err := encodePayload(e)
		if err != nil {
			return nil, &eventsourcing.ErrSerialization{
				AggregateType: aggregateType,
				AggregateID:   aggregateID,
				Sequence:      currentSequence + int64(i) + 1,
				Cause:         err,
			}
		}
		env := eventsourcing.Envelope{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Sequence:      currentSequence + int64(i) + 1,
			EventType:     e.EventType(),
			EventVersion:  e.EventVersion(),
			Payload:       payload,
			Metadata:      meta,
			CreatedAt:     now,
		}
		out = append(out, env)
	}

	s.events[key] = append(existing, out...)
	return out, nil
}

// LoadEvents implements eventsourcing.Store.
func (s *MemoryStore) LoadEvents(ctx context.Context, aggregateType, aggregateID string) ([]eventsourcing.Envelope, error) {
	return s.LoadLatestEvents(ctx, aggregateType, aggregateID, 0)
}

// LoadLatestEvents implements eventsourcing.Store.
func (s *MemoryStore) LoadLatestEvents(ctx context.Context, aggregateType, aggregateID string, sequenceFrom int64) ([]eventsourcing.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := aggregateKey{aggregateType, aggregateID}
	all := s.events[key]
	out := make([]eventsourcing.Envelope, 0, len(all))
	for _, env := range all {
		if env.Sequence > sequenceFrom {
			out = append(out, env)
		}
	}
	return out, nil
}

// LoadSequenceNums implements eventsourcing.Store.
func (s *MemoryStore) LoadSequenceNums(ctx context.Context, aggregateType string) ([]eventsourcing.AggregateSequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []eventsourcing.AggregateSequence
	for _, key := range s.order {
		if key.aggregateType != aggregateType {
			continue
		}
		events := s.events[key]
		if len(events) == 0 {
			continue
		}
		out = append(out, eventsourcing.AggregateSequence{
			AggregateID: key.aggregateID,
			MaxSequence: events[len(events)-1].Sequence,
		})
	}
	return out, nil
}

// CurrentSequence implements eventsourcing.Store.
func (s *MemoryStore) CurrentSequence(ctx context.Context, aggregateType, aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events[aggregateKey{aggregateType, aggregateID}])), nil
}
