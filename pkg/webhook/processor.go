package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/observability"
	"github.com/receiptdrop/accounts/pkg/pii"
)

// ErrStorageUnavailable is returned when the retry budget for transient
// storage failures is exhausted. The caller answers non-2xx and the
// provider redelivers.
var ErrStorageUnavailable = errors.New("storage unavailable after retries")

// CacheInvalidator drops cached read-side state after a committed mutation
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Processor applies billing events to account state under the idempotency
// guard. It is the sole writer of tier and quota-limit fields.
type Processor struct {
	db       *sql.DB
	store    account.Store
	ledger   Ledger
	verifier *Verifier
	retry    *RetryPolicy
	cache    CacheInvalidator
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewProcessor creates a Processor. cache and metrics may be nil.
func NewProcessor(db *sql.DB, store account.Store, ledger Ledger, verifier *Verifier, retry *RetryPolicy, cache CacheInvalidator, logger *observability.Logger, metrics *observability.Metrics) *Processor {
	if retry == nil {
		retry = NewRetryPolicy(DefaultRetryConfig())
	}
	return &Processor{
		db:       db,
		store:    store,
		ledger:   ledger,
		verifier: verifier,
		retry:    retry,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Process runs one event through the state machine. The returned Result is
// always terminal; err is non-nil only when the caller should fail the
// delivery so the provider retries it.
func (p *Processor) Process(ctx context.Context, evt *Event) (*Result, error) {
	start := p.now()
	result, err := p.process(ctx, evt)
	if result != nil && p.metrics != nil {
		p.metrics.WebhookEventsTotal.WithLabelValues(string(evt.Type), string(result.Outcome)).Inc()
		p.metrics.WebhookProcessSeconds.WithLabelValues(string(evt.Type)).Observe(p.now().Sub(start).Seconds())
	}
	return result, err
}

func (p *Processor) process(ctx context.Context, evt *Event) (*Result, error) {
	log := p.eventLogger(evt)

	if err := p.verifier.Verify(evt.Timestamp, evt.Payload, evt.Signature); err != nil {
		// Audit trail for every rejected delivery.
		log.WithError(err).Warn("webhook signature rejected")
		return &Result{Outcome: OutcomeRejected, Reason: "signature_invalid"}, err
	}

	change, err := p.decode(evt)
	if err != nil {
		log.WithError(err).Warn("webhook payload rejected")
		return &Result{Outcome: OutcomeRejected, Reason: "malformed_payload"}, nil
	}

	for attempt := 1; ; attempt++ {
		result, err := p.apply(ctx, evt, change)
		if err == nil {
			p.finish(ctx, log, result)
			return result, nil
		}
		if !p.retry.ShouldRetry(attempt, err) {
			log.WithError(err).WithField("attempts", attempt).Error("webhook processing failed")
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}

		if p.metrics != nil {
			p.metrics.StorageRetriesTotal.Inc()
		}
		log.WithError(err).WithField("attempt", attempt).Warn("transient storage failure, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retry.NextRetryDelay(attempt)):
		}
	}
}

// decode maps the envelope to its typed effect. A nil TierChange with nil
// error means the event type is not one this processor applies.
func (p *Processor) decode(evt *Event) (*TierChange, error) {
	target, ok := targetTier(evt.Type)
	if !ok {
		return nil, nil
	}

	var payload eventPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	if payload.UserRef == "" {
		return nil, fmt.Errorf("event payload missing user_ref")
	}

	return &TierChange{UserRef: payload.UserRef, Target: target}, nil
}

// apply claims the event id and mutates the account in one transaction
func (p *Processor) apply(ctx context.Context, evt *Event, change *TierChange) (*Result, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec := &ProcessedEvent{
		EventID:    evt.ID,
		EventType:  evt.Type,
		ProviderTS: time.Unix(evt.Timestamp, 0).UTC(),
		ReceivedAt: p.now().UTC(),
		Outcome:    OutcomeReceived,
	}
	claimed, prior, err := p.ledger.TryClaim(ctx, tx, rec)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Exactly-once effect: reuse the prior outcome, mutate nothing.
		return &Result{Outcome: OutcomeReplayed, Reason: string(prior.Outcome)}, nil
	}

	outcome := OutcomeUnsupported
	userRef := ""
	if change != nil {
		userRef = change.UserRef
		switch _, err := p.store.UpsertTx(ctx, tx, change.UserRef, func(a *account.UserAccount) error {
			account.ApplyTier(a, change.Target)
			return nil
		}); {
		case err == nil:
			outcome = OutcomeApplied
		case errors.Is(err, account.ErrNotFound):
			// Claim anyway so redeliveries stop; flagged for manual review.
			outcome = OutcomeUnknownUser
		case errors.Is(err, pii.ErrIntegrity):
			return nil, err
		default:
			return nil, err
		}
	}

	if err := p.ledger.SetOutcome(ctx, tx, evt.ID, outcome, p.now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event: %w", err)
	}

	return &Result{Outcome: outcome, UserRef: userRef}, nil
}

// finish runs post-commit bookkeeping for a terminal result
func (p *Processor) finish(ctx context.Context, log *observability.Logger, result *Result) {
	switch result.Outcome {
	case OutcomeApplied:
		if p.cache != nil {
			p.cache.Invalidate(ctx, result.UserRef)
		}
		log.WithField("user_id", result.UserRef).Info("webhook event applied")
	case OutcomeReplayed:
		log.WithField("prior_outcome", result.Reason).Info("webhook event replayed")
	case OutcomeUnknownUser:
		log.WithField("user_ref", result.UserRef).Warn("webhook event for unknown user")
	case OutcomeUnsupported:
		log.Info("unsupported webhook event type")
	}
}

func (p *Processor) eventLogger(evt *Event) *observability.Logger {
	if p.logger == nil {
		return observability.NewLogger(observability.InfoLevel, nil)
	}
	return p.logger.
		WithField("event_id", evt.ID).
		WithField("event_type", string(evt.Type))
}
