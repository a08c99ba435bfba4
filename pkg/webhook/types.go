package webhook

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/receiptdrop/accounts/pkg/account"
)

// EventType identifies a billing-provider event kind
type EventType string

const (
	EventPaymentSucceeded     EventType = "invoice.payment_succeeded"
	EventPaymentFailed        EventType = "invoice.payment_failed"
	EventSubscriptionCanceled EventType = "customer.subscription.deleted"
)

// Event is the inbound webhook envelope. Signature covers
// "<timestamp>.<payload>" with the shared secret.
type Event struct {
	ID        string          `json:"event_id"`
	Type      EventType       `json:"event_type"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// eventPayload is the portion of the payload the processor reads
type eventPayload struct {
	UserRef  string `json:"user_ref"`
	TierHint string `json:"tier_hint,omitempty"`
}

// TierChange is the decoded effect of a tier-changing event
type TierChange struct {
	UserRef string
	Target  account.Tier
}

// targetTier maps an event type to the absolute tier it sets. The bool is
// false for event types this processor does not apply.
func targetTier(t EventType) (account.Tier, bool) {
	switch t {
	case EventPaymentSucceeded:
		return account.TierPro, true
	case EventPaymentFailed:
		return account.TierPastDue, true
	case EventSubscriptionCanceled:
		return account.TierCanceled, true
	}
	return "", false
}

// Outcome is a terminal processing state recorded on the ledger row
type Outcome string

const (
	// OutcomeReceived marks a claimed row whose transaction has not yet
	// settled on a terminal outcome.
	OutcomeReceived Outcome = "received"

	OutcomeApplied     Outcome = "applied"
	OutcomeReplayed    Outcome = "replayed"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnknownUser Outcome = "unknown_user"
	OutcomeUnsupported Outcome = "unsupported_event"
)

// Success reports whether the outcome should acknowledge the delivery.
// Unknown users and unsupported types acknowledge too: redelivery cannot
// fix them, and a non-2xx would only cause a retry storm.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeApplied, OutcomeReplayed, OutcomeUnknownUser, OutcomeUnsupported:
		return true
	}
	return false
}

// Result is what processing one event produced
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	UserRef string  `json:"-"`
}

// ProcessedEvent is one ledger row
type ProcessedEvent struct {
	EventID    string       `json:"event_id"`
	EventType  EventType    `json:"event_type"`
	ProviderTS time.Time    `json:"provider_ts"`
	ReceivedAt time.Time    `json:"received_at"`
	AppliedAt  sql.NullTime `json:"applied_at"`
	Outcome    Outcome      `json:"outcome"`
}
