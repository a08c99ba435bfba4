package account

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/receiptdrop/accounts/pkg/pii"
)

const accountColumns = `user_id, email_enc, name_enc, email_hash, tier, billing_ref, virtual_inbox,
	       receipt_quota_limit, receipt_quota_used, request_quota_limit, request_quota_used,
	       quota_period_start, created_at, updated_at`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db      *sql.DB
	codec   pii.Codec
	timeout time.Duration
	now     func() time.Time
}

// NewPostgresStore creates a new PostgresStore. All PII columns pass through
// codec on the way in and out.
func NewPostgresStore(db *sql.DB, codec pii.Codec, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresStore{
		db:      db,
		codec:   codec,
		timeout: timeout,
		now:     time.Now,
	}
}

// Get returns the decrypted account for a user, or ErrNotFound
func (s *PostgresStore) Get(ctx context.Context, userID string) (*UserAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, userID))
}

// GetByEmailHash returns the account whose email hashes to hash
func (s *PostgresStore) GetByEmailHash(ctx context.Context, hash string) (*UserAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email_hash = $1`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, hash))
}

// Upsert performs an atomic read-modify-write of one account inside its own
// transaction. The row lock serializes concurrent mutations per user.
func (s *PostgresStore) Upsert(ctx context.Context, userID string, mutate func(*UserAccount) error) (*UserAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.UpsertTx(ctx, tx, userID, mutate)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit account mutation: %w", err)
	}
	return acct, nil
}

// UpsertTx is Upsert inside a caller-owned transaction. The caller commits;
// a ledger claim and the account mutation share one consistency boundary
// this way.
func (s *PostgresStore) UpsertTx(ctx context.Context, tx *sql.Tx, userID string, mutate func(*UserAccount) error) (*UserAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 FOR UPDATE`
	acct, err := s.scanAccount(tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, err
	}

	if err := mutate(acct); err != nil {
		return nil, err
	}
	if acct.ReceiptQuotaUsed < 0 || acct.RequestQuotaUsed < 0 {
		return nil, fmt.Errorf("usage counters must be non-negative")
	}

	// updated_at never moves backwards
	if now := s.now().UTC(); now.After(acct.UpdatedAt) {
		acct.UpdatedAt = now
	}

	emailEnc, err := s.codec.Encrypt(acct.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt email: %w", err)
	}
	nameEnc, err := s.codec.Encrypt(acct.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt name: %w", err)
	}

	update := `
		UPDATE accounts
		SET email_enc = $2, name_enc = $3, email_hash = $4, tier = $5, billing_ref = $6,
		    virtual_inbox = $7, receipt_quota_limit = $8, receipt_quota_used = $9,
		    request_quota_limit = $10, request_quota_used = $11,
		    quota_period_start = $12, updated_at = $13
		WHERE user_id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		acct.UserID, emailEnc, nameEnc, acct.EmailHash, acct.Tier, acct.BillingRef,
		acct.VirtualInbox, acct.ReceiptQuotaLimit, acct.ReceiptQuotaUsed,
		acct.RequestQuotaLimit, acct.RequestQuotaUsed,
		acct.QuotaPeriodStart, acct.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	return acct, nil
}

// CreateIfAbsent inserts a new account unless one already exists for the
// user id or email hash. Returns true if a row was inserted.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, acct *UserAccount) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	emailEnc, err := s.codec.Encrypt(acct.Email)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt email: %w", err)
	}
	nameEnc, err := s.codec.Encrypt(acct.Name)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt name: %w", err)
	}

	now := s.now().UTC()
	if acct.QuotaPeriodStart.IsZero() {
		acct.QuotaPeriodStart = now
	}

	query := `
		INSERT INTO accounts (user_id, email_enc, name_enc, email_hash, tier, billing_ref,
		                      virtual_inbox, receipt_quota_limit, receipt_quota_used,
		                      request_quota_limit, request_quota_used,
		                      quota_period_start, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		acct.UserID, emailEnc, nameEnc, acct.EmailHash, acct.Tier, acct.BillingRef,
		acct.VirtualInbox, acct.ReceiptQuotaLimit, acct.ReceiptQuotaUsed,
		acct.RequestQuotaLimit, acct.RequestQuotaUsed,
		acct.QuotaPeriodStart, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Delete removes the account row. The encrypted email, name and quota state
// all live on that one row, so this is the full PII erasure for the user.
func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row for scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanAccount(row rowScanner) (*UserAccount, error) {
	acct := &UserAccount{}
	var emailEnc string
	var nameEnc, billingRef, virtualInbox sql.NullString

	err := row.Scan(
		&acct.UserID, &emailEnc, &nameEnc, &acct.EmailHash, &acct.Tier,
		&billingRef, &virtualInbox,
		&acct.ReceiptQuotaLimit, &acct.ReceiptQuotaUsed,
		&acct.RequestQuotaLimit, &acct.RequestQuotaUsed,
		&acct.QuotaPeriodStart, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if billingRef.Valid {
		acct.BillingRef = billingRef.String
	}
	if virtualInbox.Valid {
		acct.VirtualInbox = virtualInbox.String
	}

	acct.Email, err = s.codec.Decrypt(emailEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt email for user %s: %w", acct.UserID, err)
	}
	if nameEnc.Valid && nameEnc.String != "" {
		acct.Name, err = s.codec.Decrypt(nameEnc.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt name for user %s: %w", acct.UserID, err)
		}
	}

	return acct, nil
}
