package eventsourcing

import "context"

// Store is the durable, ordered, per-aggregate append-only log described in
// spec.md §4.1 (C1). Implementations are keyed by (aggregateType,
// aggregateID); sequence numbers are dense from 1 within that pair.
//
// A conforming backend may be an on-disk B-tree, a relational row-store, or
// an in-memory map used in tests — see internal/eventlog for the shipped
// backends.
type Store interface {
	// Commit appends events with sequences currentSequence+1..+N. It fails
	// with *ErrOptimisticConcurrency if the store's persisted sequence for
	// this aggregate does not equal currentSequence.
	Commit(ctx context.Context, aggregateType, aggregateID string, currentSequence int64, events []EventData, meta Metadata) ([]Envelope, error)

	// LoadEvents returns every envelope for the aggregate in sequence order.
	LoadEvents(ctx context.Context, aggregateType, aggregateID string) ([]Envelope, error)

	// LoadLatestEvents returns envelopes with sequence > sequenceFrom, in order.
	LoadLatestEvents(ctx context.Context, aggregateType, aggregateID string, sequenceFrom int64) ([]Envelope, error)

	// LoadSequenceNums enumerates every aggregate of aggregateType with its
	// high-water sequence; used by the listener's periodic scan.
	LoadSequenceNums(ctx context.Context, aggregateType string) ([]AggregateSequence, error)

	// CurrentSequence returns the persisted high-water sequence for one
	// aggregate (0 if it has no events yet). Handlers use this to build the
	// AggregateContext a command is executed against.
	CurrentSequence(ctx context.Context, aggregateType, aggregateID string) (int64, error)
}
