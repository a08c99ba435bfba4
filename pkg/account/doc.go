// Package account owns user account rows: subscription tier, usage quotas,
// and encrypted PII columns.
//
// The PostgresStore is the only component that touches the accounts table.
// Per-user mutations serialize through Upsert, which locks the row for the
// duration of the read-modify-write. PII never leaves the store decrypted
// except inside the scope of a single call.
//
// Quota limits are derived from the subscription tier by the pure policy in
// quota.go; the store never invents limits on its own.
package account
