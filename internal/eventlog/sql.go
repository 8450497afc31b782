package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentforge/runtime/pkg/eventsourcing"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect hides the placeholder-style and schema-creation differences
// between the SQL backends we support, the way sessions.CockroachStore and
// a sqlite counterpart would share query logic but not connection setup.
type dialect struct {
	name         string
	placeholder  func(n int) string
	createSchema string
}

var postgresDialect = dialect{
	name: "postgres",
	placeholder: func(n int) string {
		return fmt.Sprintf("$%d", n)
	},
	createSchema: `
CREATE TABLE IF NOT EXISTS events (
	stream_id TEXT NOT NULL DEFAULT '',
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	event_type TEXT NOT NULL,
	event_version TEXT NOT NULL,
	data BYTEA NOT NULL,
	metadata BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id, sequence)
);
CREATE INDEX IF NOT EXISTS events_scan_idx ON events (aggregate_type, created_at);
`,
}

var sqliteDialect = dialect{
	name: "sqlite",
	placeholder: func(n int) string {
		return "?"
	},
	createSchema: `
CREATE TABLE IF NOT EXISTS events (
	stream_id TEXT NOT NULL DEFAULT '',
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	event_version TEXT NOT NULL,
	data BLOB NOT NULL,
	metadata BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id, sequence)
);
CREATE INDEX IF NOT EXISTS events_scan_idx ON events (aggregate_type, created_at);
`,
}

// SQLStore implements eventsourcing.Store over database/sql, following the
// prepared-statement-free query style of internal/sessions' cockroach
// backend but generalised across the postgres/sqlite dialects above.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewPostgresStore opens a Postgres/CockroachDB-backed store and ensures
// the events table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLStore(ctx, db, postgresDialect)
}

// NewSQLiteStore opens a SQLite-backed store (file path or ":memory:") and
// ensures the events table exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newSQLStore(ctx, db, sqliteDialect)
}

// NewSQLStoreFromDB wraps an already-open *sql.DB, used by tests driving a
// sqlmock connection against the postgres dialect's query shapes.
func NewSQLStoreFromDB(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

// PostgresDialect exposes the postgres dialect for sqlmock-based tests.
func PostgresDialect() dialect { return postgresDialect }

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, d.createSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// DB exposes the underlying connection, mirroring CockroachStore.DB() in
// the teacher codebase so related stores (e.g. sandbox bookkeeping) can
// share a pool.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ph(n int) string { return s.dialect.placeholder(n) }

// Commit implements eventsourcing.Store.
func (s *SQLStore) Commit(ctx context.Context, aggregateType, aggregateID string, currentSequence int64, events []eventsourcing.EventData, meta eventsourcing.Metadata) ([]eventsourcing.Envelope, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	actual, err := s.currentSequenceTx(ctx, tx, aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	if actual != currentSequence {
		return nil, &eventsourcing.ErrOptimisticConcurrency{
			AggregateType:    aggregateType,
			AggregateID:      aggregateID,
			ExpectedSequence: currentSequence,
			ActualSequence:   actual,
		}
	}

	metaBytes, err := encodeMetadata(meta)
	if err != nil {
		return nil, &eventsourcing.ErrSerialization{AggregateType: aggregateType, AggregateID: aggregateID, Cause: err}
	}

	now := time.Now().UTC()
	out := make([]eventsourcing.Envelope, 0, len(events))
	insertSQL := fmt.Sprintf(
		`INSERT INTO events (aggregate_type, aggregate_id, sequence, event_type, event_version, data, metadata, created_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8),
	)
	for i, e := range events {
		payload, err := encodePayload(e)
		if err != nil {
			return nil, &eventsourcing.ErrSerialization{
				AggregateType: aggregateType, AggregateID: aggregateID,
				Sequence: currentSequence + int64(i) + 1, Cause: err,
			}
		}
		seq := currentSequence + int64(i) + 1
		if _, err := tx.ExecContext(ctx, insertSQL,
			aggregateType, aggregateID, seq, e.EventType(), e.EventVersion(), payload, metaBytes, now,
		); err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		out = append(out, eventsourcing.Envelope{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Sequence:      seq,
			EventType:     e.EventType(),
			EventVersion:  e.EventVersion(),
			Payload:       payload,
			Metadata:      meta,
			CreatedAt:     now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return out, nil
}

func (s *SQLStore) currentSequenceTx(ctx context.Context, tx *sql.Tx, aggregateType, aggregateID string) (int64, error) {
	q := fmt.Sprintf(`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE aggregate_type = %s AND aggregate_id = %s`, s.ph(1), s.ph(2))
	var seq int64
	if err := tx.QueryRowContext(ctx, q, aggregateType, aggregateID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query current sequence: %w", err)
	}
	return seq, nil
}

// CurrentSequence implements eventsourcing.Store.
func (s *SQLStore) CurrentSequence(ctx context.Context, aggregateType, aggregateID string) (int64, error) {
	q := fmt.Sprintf(`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE aggregate_type = %s AND aggregate_id = %s`, s.ph(1), s.ph(2))
	var seq int64
	if err := s.db.QueryRowContext(ctx, q, aggregateType, aggregateID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query current sequence: %w", err)
	}
	return seq, nil
}

// LoadEvents implements eventsourcing.Store.
func (s *SQLStore) LoadEvents(ctx context.Context, aggregateType, aggregateID string) ([]eventsourcing.Envelope, error) {
	return s.LoadLatestEvents(ctx, aggregateType, aggregateID, 0)
}

// LoadLatestEvents implements eventsourcing.Store.
func (s *SQLStore) LoadLatestEvents(ctx context.Context, aggregateType, aggregateID string, sequenceFrom int64) ([]eventsourcing.Envelope, error) {
	q := fmt.Sprintf(
		`SELECT sequence, event_type, event_version, data, metadata, created_at FROM events
		 WHERE aggregate_type = %s AND aggregate_id = %s AND sequence > %s
		 ORDER BY sequence ASC`,
		s.ph(1), s.ph(2), s.ph(3),
	)
	rows, err := s.db.QueryContext(ctx, q, aggregateType, aggregateID, sequenceFrom)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []eventsourcing.Envelope
	for rows.Next() {
		var env eventsourcing.Envelope
		var metaBytes []byte
		env.AggregateType = aggregateType
		env.AggregateID = aggregateID
		if err := rows.Scan(&env.Sequence, &env.EventType, &env.EventVersion, &env.Payload, &metaBytes, &env.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		meta, err := decodeMetadata(metaBytes)
		if err != nil {
			return nil, &eventsourcing.ErrSerialization{AggregateType: aggregateType, AggregateID: aggregateID, Sequence: env.Sequence, Cause: err}
		}
		env.Metadata = meta
		out = append(out, env)
	}
	return out, rows.Err()
}

// LoadSequenceNums implements eventsourcing.Store.
func (s *SQLStore) LoadSequenceNums(ctx context.Context, aggregateType string) ([]eventsourcing.AggregateSequence, error) {
	q := fmt.Sprintf(
		`SELECT aggregate_id, MAX(sequence) FROM events WHERE aggregate_type = %s GROUP BY aggregate_id`,
		s.ph(1),
	)
	rows, err := s.db.QueryContext(ctx, q, aggregateType)
	if err != nil {
		return nil, fmt.Errorf("query sequence nums: %w", err)
	}
	defer rows.Close()

	var out []eventsourcing.AggregateSequence
	for rows.Next() {
		var as eventsourcing.AggregateSequence
		if err := rows.Scan(&as.AggregateID, &as.MaxSequence); err != nil {
			return nil, fmt.Errorf("scan sequence row: %w", err)
		}
		out = append(out, as)
	}
	return out, rows.Err()
}
