package sync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/observability"
	"github.com/receiptdrop/accounts/pkg/pii"
)

// DefaultInboxDomain is the domain for generated virtual inbox addresses
const DefaultInboxDomain = "inbox.receiptdrop.dev"

// User is one unsynced auth-side user
type User struct {
	UserID string
	Email  string
	Name   string
}

// Source lists users that have no account row yet
type Source interface {
	ListUnsynced(ctx context.Context, limit int) ([]User, error)
}

// SQLSource finds unsynced users by anti-joining the auth users table
// against accounts.
type SQLSource struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLSource creates a SQLSource
func NewSQLSource(db *sql.DB, timeout time.Duration) *SQLSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SQLSource{db: db, timeout: timeout}
}

// ListUnsynced returns users present in auth_users but absent from accounts
func (s *SQLSource) ListUnsynced(ctx context.Context, limit int) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT u.user_id, u.email, COALESCE(u.name, '')
		FROM auth_users u
		LEFT JOIN accounts a ON a.user_id = u.user_id
		WHERE a.user_id IS NULL
		ORDER BY u.created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.Email, &u.Name); err != nil {
			return nil, fmt.Errorf("failed to scan unsynced user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Syncer creates account rows for unsynced users
type Syncer struct {
	source      Source
	store       account.Store
	hasher      *pii.Hasher
	inboxDomain string
	batchSize   int
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewSyncer creates a Syncer. metrics may be nil.
func NewSyncer(source Source, store account.Store, hasher *pii.Hasher, inboxDomain string, batchSize int, logger *observability.Logger, metrics *observability.Metrics) *Syncer {
	if inboxDomain == "" {
		inboxDomain = DefaultInboxDomain
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Syncer{
		source:      source,
		store:       store,
		hasher:      hasher,
		inboxDomain: inboxDomain,
		batchSize:   batchSize,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run performs one sweep and returns how many accounts were created. A
// failure on one user does not abort the rest of the batch.
func (s *Syncer) Run(ctx context.Context) (int, error) {
	users, err := s.source.ListUnsynced(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsynced users: %w", err)
	}

	created := 0
	for _, u := range users {
		ok, err := s.store.CreateIfAbsent(ctx, s.newAccount(u))
		if err != nil {
			s.logger.WithError(err).WithField("user_id", u.UserID).Error("failed to sync user")
			continue
		}
		if ok {
			created++
			s.logger.WithField("user_id", u.UserID).Info("account created for new user")
		}
	}

	if s.metrics != nil && created > 0 {
		s.metrics.UsersSyncedTotal.Add(float64(created))
	}
	return created, nil
}

// newAccount builds the Free-tier default row for a fresh user
func (s *Syncer) newAccount(u User) *account.UserAccount {
	return &account.UserAccount{
		UserID:            u.UserID,
		Email:             u.Email,
		Name:              u.Name,
		EmailHash:         s.hasher.EmailHash(u.Email),
		Tier:              account.TierFree,
		VirtualInbox:      fmt.Sprintf("%s@%s", u.UserID, s.inboxDomain),
		ReceiptQuotaLimit: account.FreeReceiptLimit,
		RequestQuotaLimit: account.FreeRequestLimit,
	}
}
