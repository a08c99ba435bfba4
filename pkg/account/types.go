package account

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Tier represents a subscription tier
type Tier string

const (
	TierFree     Tier = "free"
	TierPro      Tier = "pro"
	TierPastDue  Tier = "past_due"
	TierCanceled Tier = "canceled"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierPastDue, TierCanceled:
		return true
	}
	return false
}

// ErrNotFound is returned when no account row exists for a user id
var ErrNotFound = errors.New("account not found")

// UserAccount is one end user's billing state. Email and Name hold plaintext
// only within a single request scope; at rest they are ciphertext columns.
type UserAccount struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	EmailHash    string    `json:"-"`
	Tier         Tier      `json:"tier"`
	BillingRef   string    `json:"billing_ref,omitempty"`
	VirtualInbox string    `json:"virtual_inbox,omitempty"`

	ReceiptQuotaLimit int64 `json:"receipt_quota_limit"`
	ReceiptQuotaUsed  int64 `json:"receipt_quota_used"`
	RequestQuotaLimit int64 `json:"request_quota_limit"`
	RequestQuotaUsed  int64 `json:"request_quota_used"`

	QuotaPeriodStart time.Time `json:"quota_period_start"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// QuotaStatus is the per-counter view returned by the query service
type QuotaStatus struct {
	Used        int64   `json:"used"`
	Limit       int64   `json:"limit"`
	Remaining   int64   `json:"remaining"`
	Utilization float64 `json:"utilization_percentage"`
}

// Status is the account-check response shape
type Status struct {
	UserID       string      `json:"user_id"`
	Tier         Tier        `json:"tier"`
	VirtualInbox string      `json:"virtual_inbox,omitempty"`
	ReceiptQuota QuotaStatus `json:"receipt_quota"`
	RequestQuota QuotaStatus `json:"request_quota"`
	Email        string      `json:"email,omitempty"`
	Name         string      `json:"name,omitempty"`
}

// Store defines persistent access to account rows
type Store interface {
	// Get returns the decrypted account for a user, or ErrNotFound
	Get(ctx context.Context, userID string) (*UserAccount, error)

	// GetByEmailHash returns the account whose email hashes to hash
	GetByEmailHash(ctx context.Context, hash string) (*UserAccount, error)

	// Upsert performs an atomic read-modify-write of one account. The row is
	// locked for the duration; mutate sees the decrypted current state and
	// edits it in place. Returns ErrNotFound if no row exists.
	Upsert(ctx context.Context, userID string, mutate func(*UserAccount) error) (*UserAccount, error)

	// UpsertTx is Upsert running inside a caller-owned transaction, so the
	// caller can commit the mutation atomically with other writes.
	UpsertTx(ctx context.Context, tx *sql.Tx, userID string, mutate func(*UserAccount) error) (*UserAccount, error)

	// CreateIfAbsent inserts a new account unless the user already has one.
	// Returns true if a row was inserted.
	CreateIfAbsent(ctx context.Context, acct *UserAccount) (bool, error)

	// Delete removes the account row and the encrypted PII it carries.
	// Returns ErrNotFound if no row exists.
	Delete(ctx context.Context, userID string) error
}
