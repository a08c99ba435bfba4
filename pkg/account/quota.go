package account

import "time"

// QuotaLimits is a tier's quota allotment for one billing period
type QuotaLimits struct {
	ReceiptLimit int64
	RequestLimit int64
}

const (
	// ProReceiptLimit is effectively unbounded; a large sentinel keeps
	// used <= limit comparisons ordinary integer math.
	ProReceiptLimit int64 = 1_000_000_000

	FreeReceiptLimit int64 = 50
	FreeRequestLimit int64 = 500
	ProRequestLimit  int64 = 50_000
)

// QuotasFor maps a tier to its quota limits. prior is the account's limits
// before the transition: past_due freezes them rather than recomputing.
func QuotasFor(tier Tier, prior QuotaLimits) QuotaLimits {
	switch tier {
	case TierPro:
		return QuotaLimits{ReceiptLimit: ProReceiptLimit, RequestLimit: ProRequestLimit}
	case TierPastDue:
		return prior
	default:
		// free and canceled share the free allotment
		return QuotaLimits{ReceiptLimit: FreeReceiptLimit, RequestLimit: FreeRequestLimit}
	}
}

// ApplyTier sets the account's tier and recomputes limits per policy. Usage
// counters are never reset by a tier change: an upgrade mid-period keeps
// accumulated usage.
func ApplyTier(acct *UserAccount, tier Tier) {
	prior := QuotaLimits{
		ReceiptLimit: acct.ReceiptQuotaLimit,
		RequestLimit: acct.RequestQuotaLimit,
	}
	limits := QuotasFor(tier, prior)

	acct.Tier = tier
	acct.ReceiptQuotaLimit = limits.ReceiptLimit
	acct.RequestQuotaLimit = limits.RequestLimit
}

// PeriodLength is one calendar month, advanced with AddDate so month-end
// boundaries behave like the billing provider's.
func nextPeriodStart(start time.Time) time.Time {
	return start.AddDate(0, 1, 0)
}

// RolloverDue reports whether the account's quota period has lapsed at now
func RolloverDue(acct *UserAccount, now time.Time) bool {
	return !now.Before(nextPeriodStart(acct.QuotaPeriodStart))
}

// RolloverIfDue resets usage counters and advances the period start when the
// current period has lapsed. Idempotent: a second call in the same period is
// a no-op. Returns true if a rollover happened.
func RolloverIfDue(acct *UserAccount, now time.Time) bool {
	if !RolloverDue(acct, now) {
		return false
	}

	// Advance whole periods until now falls inside the current one, so an
	// account idle for several months lands in the right period.
	start := acct.QuotaPeriodStart
	for !now.Before(nextPeriodStart(start)) {
		start = nextPeriodStart(start)
	}

	acct.QuotaPeriodStart = start
	acct.ReceiptQuotaUsed = 0
	acct.RequestQuotaUsed = 0
	return true
}
