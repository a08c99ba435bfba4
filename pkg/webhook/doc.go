// Package webhook ingests billing-provider events and applies them to
// account state exactly once.
//
// An inbound event carries its own HMAC signature and timestamp. Processing
// walks a fixed sequence: verify the signature, claim the event id in the
// idempotency ledger, apply the tier transition, and commit the claim and
// the account mutation in one transaction. A redelivered event finds its id
// already claimed and short-circuits to the prior outcome, so at-least-once
// delivery from the provider becomes exactly-once effect on the store.
//
// Tier transitions are absolute sets. An event names the tier the account
// should be in, not a delta, so out-of-order redeliveries resolve to
// last-write-wins by arrival order.
//
// The package also holds the billing portal client. Portal sessions are
// synchronous, user-initiated requests; they share the processor entry point
// but never touch the ledger.
package webhook
