package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTolerance is how far an event timestamp may drift from the
// verifier's clock before the event is rejected.
const DefaultTolerance = 5 * time.Minute

// SignatureError is returned when an event fails authentication. It is
// never retried and never results in a ledger write.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid webhook signature: %s", e.Reason)
}

// Verifier authenticates inbound events against the provider's shared secret
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier. A non-positive tolerance falls back to
// DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks the event timestamp against the tolerance window and the
// signature against the shared secret. Timestamp is checked first so an
// attacker replaying an old signed payload is rejected before any HMAC work.
func (v *Verifier) Verify(timestamp int64, payload []byte, signature string) error {
	eventTime := time.Unix(timestamp, 0)
	if drift := v.now().Sub(eventTime); drift > v.tolerance || drift < -v.tolerance {
		return &SignatureError{Reason: "timestamp outside tolerance window"}
	}

	expected := Sign(v.secret, timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &SignatureError{Reason: "signature mismatch"}
	}
	return nil
}

// Sign computes the signature for a timestamped payload. The signed message
// is "<timestamp>.<payload>" so the timestamp cannot be swapped without
// invalidating the signature.
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
