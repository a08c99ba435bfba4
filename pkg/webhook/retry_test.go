package webhook

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/pii"
)

func TestShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig())

	t.Run("nil error", func(t *testing.T) {
		assert.False(t, policy.ShouldRetry(1, nil))
	})

	t.Run("transient error under ceiling", func(t *testing.T) {
		assert.True(t, policy.ShouldRetry(1, errors.New("connection reset")))
		assert.True(t, policy.ShouldRetry(2, errors.New("connection reset")))
	})

	t.Run("ceiling reached", func(t *testing.T) {
		assert.False(t, policy.ShouldRetry(3, errors.New("connection reset")))
	})

	t.Run("deterministic errors never retried", func(t *testing.T) {
		assert.False(t, policy.ShouldRetry(1, pii.ErrIntegrity))
		assert.False(t, policy.ShouldRetry(1, account.ErrNotFound))
		assert.False(t, policy.ShouldRetry(1, &SignatureError{Reason: "signature mismatch"}))
	})

	t.Run("wrapped deterministic errors", func(t *testing.T) {
		err := errors.Join(errors.New("context"), pii.ErrIntegrity)
		assert.False(t, policy.ShouldRetry(1, err))
	})
}

func TestNextRetryDelay(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	})

	assert.Equal(t, 100*time.Millisecond, policy.NextRetryDelay(0))
	assert.Equal(t, 100*time.Millisecond, policy.NextRetryDelay(1))
	assert.Equal(t, 200*time.Millisecond, policy.NextRetryDelay(2))
	assert.Equal(t, 400*time.Millisecond, policy.NextRetryDelay(3))

	// Capped at the max delay.
	assert.Equal(t, time.Second, policy.NextRetryDelay(10))
}

func TestRetryConfigDefaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{})

	assert.Equal(t, 3, policy.config.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.config.InitialDelay)
	assert.Equal(t, 2*time.Second, policy.config.MaxDelay)
	assert.Equal(t, 2.0, policy.config.BackoffMultiplier)
}
