package eventlog

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadlink/conversions/internal/logger"
)

func TestBufferSend(t *testing.T) {
	buf := NewBuffer(10)
	defer buf.Close()

	ok := buf.Send(Record{WorkspaceID: "ws_1", Kind: KindUnmatchedExpired})
	assert.True(t, ok)
	assert.Equal(t, 1, buf.Len())
}

func TestBufferSendFull(t *testing.T) {
	buf := NewBuffer(1)
	defer buf.Close()

	require.True(t, buf.Send(Record{WorkspaceID: "ws_1"}))
	assert.False(t, buf.Send(Record{WorkspaceID: "ws_2"}))
}

func TestBufferCloseIdempotent(t *testing.T) {
	buf := NewBuffer(1)
	buf.Close()
	buf.Close()
}

func TestStoreFlushesOnStop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs(
			"ws_1", "calcom", "unmatched_expired", "window elapsed", "payload-1", sqlmock.AnyArg(),
			"ws_2", "stripe", "lead_create_failed", "service down", "", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	buf := NewBuffer(10)
	store := NewStore(db, buf, logger.NewNop(), time.Hour, 100)
	store.Start()

	store.Record(Record{
		WorkspaceID: "ws_1",
		Provider:    "calcom",
		Kind:        KindUnmatchedExpired,
		Reason:      "window elapsed",
		Payload:     "payload-1",
	})
	store.Record(Record{
		WorkspaceID: "ws_2",
		Provider:    "stripe",
		Kind:        KindLeadCreateFailed,
		Reason:      "service down",
	})

	store.Stop()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFlushesAtThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(sqlmock.NewResult(0, 2))

	buf := NewBuffer(10)
	store := NewStore(db, buf, logger.NewNop(), time.Hour, 2)
	store.Start()
	defer store.Stop()

	store.Record(Record{WorkspaceID: "ws_1", Provider: "calcom", Kind: KindMalformed})
	store.Record(Record{WorkspaceID: "ws_1", Provider: "calcom", Kind: KindMalformed})

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecordFillsCreatedAt(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	buf := NewBuffer(1)
	store := NewStore(db, buf, logger.NewNop(), time.Hour, 100)

	store.Record(Record{WorkspaceID: "ws_1", Kind: KindAuthFailed})

	rec := <-buf.records
	assert.False(t, rec.CreatedAt.IsZero())
}
