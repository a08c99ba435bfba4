package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptdrop/accounts/pkg/pii"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, pii.Codec) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	codec, err := pii.NewAESCodec(testKeyHex)
	require.NoError(t, err)

	store := NewPostgresStore(db, codec, 5*time.Second)
	store.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return store, mock, codec
}

func accountColumnNames() []string {
	fields := strings.Split(accountColumns, ",")
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, strings.TrimSpace(f))
	}
	return names
}

func accountRow(t *testing.T, codec pii.Codec, acct *UserAccount) *sqlmock.Rows {
	t.Helper()

	emailEnc, err := codec.Encrypt(acct.Email)
	require.NoError(t, err)
	nameEnc, err := codec.Encrypt(acct.Name)
	require.NoError(t, err)

	return sqlmock.NewRows(accountColumnNames()).AddRow(
		acct.UserID, emailEnc, nameEnc, acct.EmailHash, string(acct.Tier),
		acct.BillingRef, acct.VirtualInbox,
		acct.ReceiptQuotaLimit, acct.ReceiptQuotaUsed,
		acct.RequestQuotaLimit, acct.RequestQuotaUsed,
		acct.QuotaPeriodStart, acct.CreatedAt, acct.UpdatedAt,
	)
}

func testAccount() *UserAccount {
	return &UserAccount{
		UserID:            "user-1",
		Email:             "alice@example.com",
		Name:              "Alice",
		EmailHash:         "abc123",
		Tier:              TierFree,
		BillingRef:        "cus_123",
		VirtualInbox:      "user-1@inbox.receiptdrop.dev",
		ReceiptQuotaLimit: FreeReceiptLimit,
		ReceiptQuotaUsed:  10,
		RequestQuotaLimit: FreeRequestLimit,
		RequestQuotaUsed:  3,
		QuotaPeriodStart:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPostgresStoreGet(t *testing.T) {
	t.Run("decrypts PII on read", func(t *testing.T) {
		store, mock, codec := newTestStore(t)
		want := testAccount()

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE user_id = (.+)").
			WithArgs("user-1").
			WillReturnRows(accountRow(t, codec, want))

		got, err := store.Get(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, "Alice", got.Name)
		assert.Equal(t, TierFree, got.Tier)
		assert.Equal(t, int64(10), got.ReceiptQuotaUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock, _ := newTestStore(t)

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE user_id = (.+)").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("tampered ciphertext surfaces integrity error", func(t *testing.T) {
		store, mock, _ := newTestStore(t)
		want := testAccount()

		rows := sqlmock.NewRows(accountColumnNames()).AddRow(
			want.UserID, "not-valid-ciphertext", nil, want.EmailHash, string(want.Tier),
			want.BillingRef, want.VirtualInbox,
			want.ReceiptQuotaLimit, want.ReceiptQuotaUsed,
			want.RequestQuotaLimit, want.RequestQuotaUsed,
			want.QuotaPeriodStart, want.CreatedAt, want.UpdatedAt,
		)
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE user_id = (.+)").
			WithArgs("user-1").
			WillReturnRows(rows)

		_, err := store.Get(context.Background(), "user-1")
		assert.ErrorIs(t, err, pii.ErrIntegrity)
	})
}

func TestPostgresStoreGetByEmailHash(t *testing.T) {
	store, mock, codec := newTestStore(t)
	want := testAccount()

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE email_hash = (.+)").
		WithArgs("abc123").
		WillReturnRows(accountRow(t, codec, want))

	got, err := store.GetByEmailHash(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpsert(t *testing.T) {
	t.Run("locks row, applies mutation, commits", func(t *testing.T) {
		store, mock, codec := newTestStore(t)
		want := testAccount()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE user_id = (.+) FOR UPDATE").
			WithArgs("user-1").
			WillReturnRows(accountRow(t, codec, want))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "abc123", "pro", "cus_123",
				want.VirtualInbox, ProReceiptLimit, int64(10), ProRequestLimit, int64(3),
				want.QuotaPeriodStart, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := store.Upsert(context.Background(), "user-1", func(a *UserAccount) error {
			ApplyTier(a, TierPro)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, TierPro, got.Tier)
		assert.Equal(t, int64(10), got.ReceiptQuotaUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blocked writer reads the first writer's commit", func(t *testing.T) {
		// Two webhook events race on one user. The row lock serializes them:
		// the second SELECT ... FOR UPDATE blocks until the first commits and
		// then reads the committed row, never the stale before-state.
		store, mock, codec := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").
			WithArgs("user-1").
			WillReturnRows(accountRow(t, codec, testAccount()))
		mock.ExpectExec("UPDATE accounts").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		afterFirst, err := store.Upsert(context.Background(), "user-1", func(a *UserAccount) error {
			ApplyTier(a, TierPro)
			return nil
		})
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").
			WithArgs("user-1").
			WillReturnRows(accountRow(t, codec, afterFirst))
		mock.ExpectExec("UPDATE accounts").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		afterSecond, err := store.Upsert(context.Background(), "user-1", func(a *UserAccount) error {
			// The mutation sees the upgraded row, not the Free-tier one.
			assert.Equal(t, TierPro, a.Tier)
			ApplyTier(a, TierCanceled)
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, TierCanceled, afterSecond.Tier)
		assert.Equal(t, FreeReceiptLimit, afterSecond.ReceiptQuotaLimit)
		assert.Equal(t, int64(10), afterSecond.ReceiptQuotaUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mutation error rolls back", func(t *testing.T) {
		store, mock, codec := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").
			WithArgs("user-1").
			WillReturnRows(accountRow(t, codec, testAccount()))
		mock.ExpectRollback()

		boom := errors.New("boom")
		_, err := store.Upsert(context.Background(), "user-1", func(a *UserAccount) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects negative usage counters", func(t *testing.T) {
		store, mock, codec := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").
			WithArgs("user-1").
			WillReturnRows(accountRow(t, codec, testAccount()))
		mock.ExpectRollback()

		_, err := store.Upsert(context.Background(), "user-1", func(a *UserAccount) error {
			a.ReceiptQuotaUsed = -5
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-negative")
	})

	t.Run("not found under lock", func(t *testing.T) {
		store, mock, _ := newTestStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FOR UPDATE").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.Upsert(context.Background(), "missing", func(a *UserAccount) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStoreDelete(t *testing.T) {
	t.Run("removes the row", func(t *testing.T) {
		store, mock, _ := newTestStore(t)

		mock.ExpectExec("DELETE FROM accounts WHERE user_id").
			WithArgs("user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Delete(context.Background(), "user-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock, _ := newTestStore(t)

		mock.ExpectExec("DELETE FROM accounts WHERE user_id").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Delete(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStoreCreateIfAbsent(t *testing.T) {
	t.Run("inserts new account", func(t *testing.T) {
		store, mock, _ := newTestStore(t)
		acct := testAccount()

		mock.ExpectExec("INSERT INTO accounts").
			WillReturnResult(sqlmock.NewResult(0, 1))

		created, err := store.CreateIfAbsent(context.Background(), acct)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict is not an error", func(t *testing.T) {
		store, mock, _ := newTestStore(t)
		acct := testAccount()

		mock.ExpectExec("INSERT INTO accounts").
			WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := store.CreateIfAbsent(context.Background(), acct)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("defaults quota period start", func(t *testing.T) {
		store, mock, _ := newTestStore(t)
		acct := testAccount()
		acct.QuotaPeriodStart = time.Time{}

		mock.ExpectExec("INSERT INTO accounts").
			WillReturnResult(sqlmock.NewResult(0, 1))

		_, err := store.CreateIfAbsent(context.Background(), acct)
		require.NoError(t, err)
		assert.Equal(t, store.now().UTC(), acct.QuotaPeriodStart)
	})
}
