// Package pii provides authenticated encryption for personally identifiable
// fields stored at rest, plus salted hashing for equality lookups.
//
// All PII columns (emails, names, contact details) pass through a Codec
// before persistence and after retrieval. Encryption is AES-256-GCM with a
// fresh nonce per call, so encrypting the same plaintext twice yields
// different ciphertexts; callers must never compare ciphertexts to dedupe
// plaintext. Use Hasher for lookup columns instead.
package pii
