package webhook

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEventRecord() *ProcessedEvent {
	return &ProcessedEvent{
		EventID:    "evt_1",
		EventType:  EventPaymentSucceeded,
		ProviderTS: time.Date(2025, 6, 15, 11, 59, 0, 0, time.UTC),
		ReceivedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Outcome:    OutcomeReceived,
	}
}

func TestTryClaim(t *testing.T) {
	t.Run("fresh event is claimed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		ledger := NewPostgresLedger(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO processed_events").
			WithArgs("evt_1", string(EventPaymentSucceeded), sqlmock.AnyArg(), sqlmock.AnyArg(), string(OutcomeReceived)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		tx, err := db.Begin()
		require.NoError(t, err)

		claimed, prior, err := ledger.TryClaim(context.Background(), tx, testEventRecord())
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Nil(t, prior)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate id returns prior outcome", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		ledger := NewPostgresLedger(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO processed_events").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM processed_events WHERE event_id = (.+)").
			WithArgs("evt_1").
			WillReturnRows(sqlmock.NewRows([]string{
				"event_id", "event_type", "provider_ts", "received_at", "applied_at", "outcome",
			}).AddRow(
				"evt_1", string(EventPaymentSucceeded),
				time.Date(2025, 6, 15, 11, 59, 0, 0, time.UTC),
				time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
				time.Date(2025, 6, 15, 12, 0, 1, 0, time.UTC),
				string(OutcomeApplied),
			))

		tx, err := db.Begin()
		require.NoError(t, err)

		claimed, prior, err := ledger.TryClaim(context.Background(), tx, testEventRecord())
		require.NoError(t, err)
		assert.False(t, claimed)
		require.NotNil(t, prior)
		assert.Equal(t, OutcomeApplied, prior.Outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ledger := NewPostgresLedger(db)

	appliedAt := time.Date(2025, 6, 15, 12, 0, 1, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE processed_events SET outcome").
		WithArgs("evt_1", string(OutcomeApplied), appliedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	require.NoError(t, ledger.SetOutcome(context.Background(), tx, "evt_1", OutcomeApplied, appliedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ledger := NewPostgresLedger(db)

	mock.ExpectQuery("SELECT (.+) FROM processed_events ORDER BY received_at DESC").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "event_type", "provider_ts", "received_at", "applied_at", "outcome",
		}).AddRow(
			"evt_2", string(EventSubscriptionCanceled),
			time.Now(), time.Now(), nil, string(OutcomeUnknownUser),
		).AddRow(
			"evt_1", string(EventPaymentSucceeded),
			time.Now(), time.Now(), time.Now(), string(OutcomeApplied),
		))

	events, err := ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt_2", events[0].EventID)
	assert.False(t, events[0].AppliedAt.Valid)
	assert.Equal(t, OutcomeApplied, events[1].Outcome)
}

// The ledger binds provider_ts, received_at and applied_at as time.Time, so
// the shipped schema must declare timestamp columns. An integer column there
// breaks the claim insert and the replay read-back against a real database.
func TestLedgerSchemaUsesTimestampColumns(t *testing.T) {
	ddl, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)

	match := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS processed_events \((.*?)\);`).FindSubmatch(ddl)
	require.NotNil(t, match, "processed_events DDL not found")
	table := string(match[1])

	for _, col := range []string{"provider_ts", "received_at", "applied_at"} {
		assert.Regexp(t, col+`\s+TIMESTAMP WITH TIME ZONE`, table)
	}
	assert.Regexp(t, `event_id\s+VARCHAR\(\d+\) PRIMARY KEY`, table)
}
