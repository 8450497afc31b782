package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/runtime/pkg/eventsourcing"
)

func setupMockSQLStore(t *testing.T) (sqlmock.Sqlmock, *SQLStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewSQLStoreFromDB(db, PostgresDialect())
}

func TestSQLStore_Commit(t *testing.T) {
	t.Run("successful commit inserts sequential rows", func(t *testing.T) {
		mock, store := setupMockSQLStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence\\), 0\\) FROM events").
			WithArgs("agent", "a1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
		mock.ExpectExec("INSERT INTO events").
			WithArgs("agent", "a1", int64(1), "one", "v1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		envs, err := store.Commit(context.Background(), "agent", "a1", 0,
			[]eventsourcing.EventData{testEvent{Kind: "one"}}, eventsourcing.Metadata{})
		require.NoError(t, err)
		require.Len(t, envs, 1)
		assert.EqualValues(t, 1, envs[0].Sequence)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale sequence rolls back and returns conflict", func(t *testing.T) {
		mock, store := setupMockSQLStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence\\), 0\\) FROM events").
			WithArgs("agent", "a1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(3)))
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), "agent", "a1", 0,
			[]eventsourcing.EventData{testEvent{Kind: "one"}}, eventsourcing.Metadata{})
		require.Error(t, err)

		var conflict *eventsourcing.ErrOptimisticConcurrency
		require.ErrorAs(t, err, &conflict)
		assert.EqualValues(t, 3, conflict.ActualSequence)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no events is a no-op", func(t *testing.T) {
		_, store := setupMockSQLStore(t)
		envs, err := store.Commit(context.Background(), "agent", "a1", 0, nil, eventsourcing.Metadata{})
		require.NoError(t, err)
		assert.Nil(t, envs)
	})

	t.Run("insert error rolls back", func(t *testing.T) {
		mock, store := setupMockSQLStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence\\), 0\\) FROM events").
			WithArgs("agent", "a1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
		mock.ExpectExec("INSERT INTO events").
			WillReturnError(errors.New("connection refused"))
		mock.ExpectRollback()

		_, err := store.Commit(context.Background(), "agent", "a1", 0,
			[]eventsourcing.EventData{testEvent{Kind: "one"}}, eventsourcing.Metadata{})
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStore_LoadLatestEvents(t *testing.T) {
	mock, store := setupMockSQLStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"sequence", "event_type", "event_version", "data", "metadata", "created_at"}).
		AddRow(int64(1), "one", "v1", []byte(`{"kind":"one"}`), []byte(`{}`), now).
		AddRow(int64(2), "two", "v1", []byte(`{"kind":"two"}`), []byte(`{}`), now)
	mock.ExpectQuery("SELECT sequence, event_type, event_version, data, metadata, created_at FROM events").
		WithArgs("agent", "a1", int64(0)).
		WillReturnRows(rows)

	envs, err := store.LoadLatestEvents(context.Background(), "agent", "a1", 0)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, "one", envs[0].EventType)
	assert.Equal(t, "two", envs[1].EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CurrentSequence(t *testing.T) {
	mock, store := setupMockSQLStore(t)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence\\), 0\\) FROM events").
		WithArgs("agent", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(7)))

	seq, err := store.CurrentSequence(context.Background(), "agent", "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LoadSequenceNums(t *testing.T) {
	mock, store := setupMockSQLStore(t)

	rows := sqlmock.NewRows([]string{"aggregate_id", "max"}).
		AddRow("a1", int64(4)).
		AddRow("a2", int64(9))
	mock.ExpectQuery("SELECT aggregate_id, MAX\\(sequence\\) FROM events").
		WithArgs("agent").
		WillReturnRows(rows)

	seqs, err := store.LoadSequenceNums(context.Background(), "agent")
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ImplementsStore(t *testing.T) {
	var _ eventsourcing.Store = (*SQLStore)(nil)
}
