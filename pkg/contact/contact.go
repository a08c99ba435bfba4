package contact

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/receiptdrop/accounts/pkg/pii"
)

// Kind distinguishes the two contact forms
type Kind string

const (
	KindIndividual Kind = "individual"
	KindEnterprise Kind = "enterprise"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindIndividual || k == KindEnterprise
}

// Submission is one contact-form entry. Company is set only for enterprise
// submissions.
type Submission struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines persistent access to contact submissions
type Store interface {
	// Create persists a submission and fills in its ID and CreatedAt.
	Create(ctx context.Context, sub *Submission) error

	// ListRecent returns the newest submissions of one kind, newest first.
	ListRecent(ctx context.Context, kind Kind, limit int) ([]*Submission, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db      *sql.DB
	codec   pii.Codec
	timeout time.Duration
	now     func() time.Time
}

// NewPostgresStore creates a new PostgresStore
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

// Create persists a submission with all PII fields encrypted
func (s *PostgresStore) Create(ctx context.Context, sub *Submission) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if !sub.Kind.Valid() {
		return fmt.Errorf("invalid submission kind: %s", sub.Kind)
	}

	emailEnc, err := s.codec.Encrypt(sub.Email)
	if err != nil {
		return fmt.Errorf("failed to encrypt email: %w", err)
	}
	nameEnc, err := s.codec.Encrypt(sub.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt name: %w", err)
	}
	companyEnc, err := s.codec.Encrypt(sub.Company)
	if err != nil {
		return fmt.Errorf("failed to encrypt company: %w", err)
	}
	messageEnc, err := s.codec.Encrypt(sub.Message)
	if err != nil {
		return fmt.Errorf("failed to encrypt message: %w", err)
	}

	sub.CreatedAt = s.now().UTC()

	query := `
		INSERT INTO contact_submissions (kind, email_enc, name_enc, company_enc, message_enc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		sub.Kind, emailEnc, nameEnc, companyEnc, messageEnc, sub.CreatedAt,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("failed to create contact submission: %w", err)
	}
	return nil
}

// ListRecent returns decrypted submissions of one kind, newest first
func (s *PostgresStore) ListRecent(ctx context.Context, kind Kind, limit int) ([]*Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, kind, email_enc, name_enc, company_enc, message_enc, created_at
		FROM contact_submissions
		WHERE kind = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact submissions: %w", err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		sub := &Submission{}
		var emailEnc, nameEnc, companyEnc, messageEnc string
		if err := rows.Scan(&sub.ID, &sub.Kind, &emailEnc, &nameEnc, &companyEnc, &messageEnc, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact submission: %w", err)
		}

		if sub.Email, err = s.codec.Decrypt(emailEnc); err != nil {
			return nil, fmt.Errorf("failed to decrypt submission %d: %w", sub.ID, err)
		}
		if sub.Name, err = s.codec.Decrypt(nameEnc); err != nil {
			return nil, fmt.Errorf("failed to decrypt submission %d: %w", sub.ID, err)
		}
		if sub.Company, err = s.codec.Decrypt(companyEnc); err != nil {
			return nil, fmt.Errorf("failed to decrypt submission %d: %w", sub.ID, err)
		}
		if sub.Message, err = s.codec.Decrypt(messageEnc); err != nil {
			return nil, fmt.Errorf("failed to decrypt submission %d: %w", sub.ID, err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
