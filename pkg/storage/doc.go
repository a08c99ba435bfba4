// Package storage manages connections to the durable stores: PostgreSQL for
// account and ledger rows, Redis for the optional status cache.
//
// PostgreSQL is the single consistency boundary; the webhook processor's
// claim-then-apply sequence runs in one transaction on the primary pool.
package storage
