package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Ledger records which event ids have been processed. Claim and outcome
// writes run inside the caller's transaction so they commit atomically with
// the account mutation they guard.
type Ledger interface {
	// TryClaim inserts a row for the event id. Returns claimed=false and the
	// prior row when the id was already processed.
	TryClaim(ctx context.Context, tx *sql.Tx, rec *ProcessedEvent) (claimed bool, prior *ProcessedEvent, err error)

	// SetOutcome records the terminal outcome on a claimed row.
	SetOutcome(ctx context.Context, tx *sql.Tx, eventID string, outcome Outcome, appliedAt time.Time) error
}

const ledgerColumns = `event_id, event_type, provider_ts, received_at, applied_at, outcome`

// PostgresLedger implements Ledger using PostgreSQL
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a new PostgresLedger. db is used only for reads
// outside a processing transaction.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// TryClaim reserves the event id. ON CONFLICT DO NOTHING makes the insert a
// no-op for a processed id; a concurrent claim of the same id blocks on the
// primary key until the first transaction settles.
func (l *PostgresLedger) TryClaim(ctx context.Context, tx *sql.Tx, rec *ProcessedEvent) (bool, *ProcessedEvent, error) {
	query := `
		INSERT INTO processed_events (event_id, event_type, provider_ts, received_at, outcome)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query,
		rec.EventID, rec.EventType, rec.ProviderTS, rec.ReceivedAt, rec.Outcome,
	)
	if err != nil {
		return false, nil, fmt.Errorf("failed to claim event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil, nil
	}

	prior, err := l.getTx(ctx, tx, rec.EventID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read prior event outcome: %w", err)
	}
	return false, prior, nil
}

// SetOutcome finalizes a claimed row
func (l *PostgresLedger) SetOutcome(ctx context.Context, tx *sql.Tx, eventID string, outcome Outcome, appliedAt time.Time) error {
	query := `UPDATE processed_events SET outcome = $2, applied_at = $3 WHERE event_id = $1`
	if _, err := tx.ExecContext(ctx, query, eventID, outcome, appliedAt); err != nil {
		return fmt.Errorf("failed to record event outcome: %w", err)
	}
	return nil
}

func (l *PostgresLedger) getTx(ctx context.Context, tx *sql.Tx, eventID string) (*ProcessedEvent, error) {
	query := `SELECT ` + ledgerColumns + ` FROM processed_events WHERE event_id = $1`
	rec := &ProcessedEvent{}
	err := tx.QueryRowContext(ctx, query, eventID).Scan(
		&rec.EventID, &rec.EventType, &rec.ProviderTS, &rec.ReceivedAt,
		&rec.AppliedAt, &rec.Outcome,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent returns the most recently received ledger rows, newest first.
// Used for the manual-review surface over unknown-user events.
func (l *PostgresLedger) Recent(ctx context.Context, limit int) ([]*ProcessedEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + ledgerColumns + ` FROM processed_events ORDER BY received_at DESC LIMIT $1`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed events: %w", err)
	}
	defer rows.Close()

	var events []*ProcessedEvent
	for rows.Next() {
		rec := &ProcessedEvent{}
		if err := rows.Scan(
			&rec.EventID, &rec.EventType, &rec.ProviderTS, &rec.ReceivedAt,
			&rec.AppliedAt, &rec.Outcome,
		); err != nil {
			return nil, fmt.Errorf("failed to scan processed event: %w", err)
		}
		events = append(events, rec)
	}
	return events, rows.Err()
}
