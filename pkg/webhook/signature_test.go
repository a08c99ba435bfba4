package webhook

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	secret := "whsec_test"
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"user_ref":"user-1"}`)

	newVerifier := func() *Verifier {
		v := NewVerifier(secret, 5*time.Minute)
		v.now = func() time.Time { return now }
		return v
	}

	t.Run("valid signature", func(t *testing.T) {
		v := newVerifier()
		ts := now.Unix()
		assert.NoError(t, v.Verify(ts, payload, Sign(secret, ts, payload)))
	})

	t.Run("signature format", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(Sign(secret, now.Unix(), payload), "sha256="))
	})

	t.Run("wrong secret", func(t *testing.T) {
		v := newVerifier()
		ts := now.Unix()
		err := v.Verify(ts, payload, Sign("other-secret", ts, payload))
		var sigErr *SignatureError
		require.ErrorAs(t, err, &sigErr)
		assert.Equal(t, "signature mismatch", sigErr.Reason)
	})

	t.Run("tampered payload", func(t *testing.T) {
		v := newVerifier()
		ts := now.Unix()
		sig := Sign(secret, ts, payload)
		err := v.Verify(ts, []byte(`{"user_ref":"user-2"}`), sig)
		var sigErr *SignatureError
		assert.ErrorAs(t, err, &sigErr)
	})

	t.Run("timestamp cannot be swapped", func(t *testing.T) {
		v := newVerifier()
		sig := Sign(secret, now.Add(-2*time.Minute).Unix(), payload)
		err := v.Verify(now.Unix(), payload, sig)
		var sigErr *SignatureError
		assert.ErrorAs(t, err, &sigErr)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		v := newVerifier()
		ts := now.Add(-6 * time.Minute).Unix()
		err := v.Verify(ts, payload, Sign(secret, ts, payload))
		var sigErr *SignatureError
		require.ErrorAs(t, err, &sigErr)
		assert.Contains(t, sigErr.Reason, "tolerance")
	})

	t.Run("future timestamp", func(t *testing.T) {
		v := newVerifier()
		ts := now.Add(6 * time.Minute).Unix()
		err := v.Verify(ts, payload, Sign(secret, ts, payload))
		var sigErr *SignatureError
		assert.ErrorAs(t, err, &sigErr)
	})

	t.Run("drift inside tolerance is accepted", func(t *testing.T) {
		v := newVerifier()
		ts := now.Add(-4 * time.Minute).Unix()
		assert.NoError(t, v.Verify(ts, payload, Sign(secret, ts, payload)))
	})
}
