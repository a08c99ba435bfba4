package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher produces deterministic salted hashes of email addresses so rows can
// be looked up by email without storing plaintext. The salt is process-wide
// configuration, injected at construction.
type Hasher struct {
	salt string
}

// NewHasher creates a Hasher with the given salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// EmailHash returns the hex-encoded SHA-256 of the lowercased email joined
// with the salt. Case variants of the same address hash identically.
func (h *Hasher) EmailHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + "::" + h.salt))
	return hex.EncodeToString(sum[:])
}
