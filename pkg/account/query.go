package account

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/receiptdrop/accounts/pkg/observability"
)

// QueryService answers read-side account status questions. Tier and quota
// fields are never written here; the opportunistic quota rollover goes
// through the store's locked Upsert, and account erasure delegates to the
// store's Delete.
type QueryService struct {
	store   Store
	cache   *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewQueryService creates a QueryService. cache may be nil to disable the
// read-through cache; metrics may be nil.
func NewQueryService(store Store, cache *redis.Client, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *QueryService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &QueryService{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func statusCacheKey(userID string) string {
	return "account:status:" + userID
}

// CheckStatus returns the user's tier and quota usage. PII is decrypted into
// the response only when includePII is set. A lapsed quota period is rolled
// over persistently before reporting, so stale counters are never shown.
func (q *QueryService) CheckStatus(ctx context.Context, userID string, includePII bool) (*Status, error) {
	// Only the non-PII payload is ever cached.
	if q.cache != nil && !includePII {
		if status, ok := q.cacheGet(ctx, userID); ok {
			return status, nil
		}
	}

	acct, err := q.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if RolloverDue(acct, q.now()) {
		acct, err = q.store.Upsert(ctx, userID, func(a *UserAccount) error {
			RolloverIfDue(a, q.now())
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to roll over quota period: %w", err)
		}
		if q.metrics != nil {
			q.metrics.QuotaRolloversTotal.Inc()
		}
		q.Invalidate(ctx, userID)
	}

	status := buildStatus(acct, includePII)

	if q.cache != nil && !includePII {
		q.cacheSet(ctx, userID, status)
	}
	return status, nil
}

// DeleteAccount removes the account row and drops any cached status for the
// user. The service owns the status cache, so the row delete and the cache
// drop travel together.
func (q *QueryService) DeleteAccount(ctx context.Context, userID string) error {
	if err := q.store.Delete(ctx, userID); err != nil {
		return err
	}
	q.Invalidate(ctx, userID)
	if q.logger != nil {
		q.logger.WithField("user_id", userID).Info("account deleted")
	}
	return nil
}

// Invalidate drops the cached status for a user. The webhook processor calls
// this after committing a mutation.
func (q *QueryService) Invalidate(ctx context.Context, userID string) {
	if q.cache == nil {
		return
	}
	if err := q.cache.Del(ctx, statusCacheKey(userID)).Err(); err != nil && q.logger != nil {
		q.logger.WithError(err).WithField("user_id", userID).Warn("failed to invalidate status cache")
	}
}

func (q *QueryService) cacheGet(ctx context.Context, userID string) (*Status, bool) {
	data, err := q.cache.Get(ctx, statusCacheKey(userID)).Result()
	if err == redis.Nil {
		if q.metrics != nil {
			q.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}
	if err != nil {
		// Cache trouble falls back to the store.
		if q.logger != nil {
			q.logger.WithError(err).Warn("status cache read failed")
		}
		return nil, false
	}

	var status Status
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		q.cache.Del(ctx, statusCacheKey(userID))
		return nil, false
	}
	if q.metrics != nil {
		q.metrics.CacheHitsTotal.Inc()
	}
	return &status, true
}

func (q *QueryService) cacheSet(ctx context.Context, userID string, status *Status) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := q.cache.Set(ctx, statusCacheKey(userID), data, q.ttl).Err(); err != nil && q.logger != nil {
		q.logger.WithError(err).Warn("status cache write failed")
	}
}

func buildStatus(acct *UserAccount, includePII bool) *Status {
	status := &Status{
		UserID:       acct.UserID,
		Tier:         acct.Tier,
		VirtualInbox: acct.VirtualInbox,
		ReceiptQuota: quotaStatus(acct.ReceiptQuotaUsed, acct.ReceiptQuotaLimit),
		RequestQuota: quotaStatus(acct.RequestQuotaUsed, acct.RequestQuotaLimit),
	}
	if includePII {
		status.Email = acct.Email
		status.Name = acct.Name
	}
	return status
}

func quotaStatus(used, limit int64) QuotaStatus {
	qs := QuotaStatus{Used: used, Limit: limit}
	if remaining := limit - used; remaining > 0 {
		qs.Remaining = remaining
	}
	if limit > 0 {
		qs.Utilization = math.Round(float64(used)/float64(limit)*10000) / 100
	}
	return qs
}
