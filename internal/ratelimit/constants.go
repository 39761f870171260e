// Package ratelimit enforces Riot's multi-tier rate limits across every
// process that shares the same API key, using sliding window counters kept
// in a shared store.
package ratelimit

import "time"

// Riot API Rate Limits
//
// Riot throttles on two independent tiers that both must be satisfied for
// every request:
//
//   - Application tier: two windows shared by ALL endpoints. A development
//     key gets 20 requests per 1 second and 100 requests per 120 seconds.
//   - Method tier: a per-endpoint window. Match endpoints are generous
//     (2000 per 10 seconds on a dev key); identity endpoints are not.
//
// Production keys carry higher limits. Riot reports the authoritative
// numbers on every response via X-App-Rate-Limit and X-Method-Rate-Limit,
// so the values below are only seed defaults - the limiter replaces them
// as soon as it sees a response.

// Application-tier bucket names. Every request is counted against both.
const (
	// BucketAppShort is the short burst window (default 20 requests / 1s).
	BucketAppShort = "app_short"

	// BucketAppLong is the sustained window (default 100 requests / 120s).
	BucketAppLong = "app_long"
)

// Method-tier bucket names, one per client operation.
const (
	BucketAccount     = "account"
	BucketSummoner    = "summoner"
	BucketRank        = "rank"
	BucketMatchIDs    = "match_ids"
	BucketMatchDetail = "match_detail"
)

// Backoff configuration for WaitIfNeeded.
//
// The retry ceiling is a liveness guard: a bucket that never frees up
// (misreported limits, clock skew, a stuck cooldown) must not wedge a
// caller forever. Five rounds at the capped backoff is over a minute of
// waiting before we give up.
const (
	// WaitMaxRetries is the number of deny-sleep-recheck rounds before
	// WaitIfNeeded returns ErrWaitRetriesExceeded.
	WaitMaxRetries = 5

	// WaitBaseBackoff is the base for exponential backoff between rechecks.
	WaitBaseBackoff = 1 * time.Second

	// WaitMaxBackoff caps the exponential backoff.
	WaitMaxBackoff = 60 * time.Second

	// WaitJitterFactor scales the random jitter added to each backoff.
	// Jitter spreads out rechecks when many workers are denied at once.
	WaitJitterFactor = 0.5
)

// DefaultConfig returns the seed bucket configuration for a development key.
// Header updates replace individual buckets at runtime; buckets are never
// removed.
func DefaultConfig() *Config {
	return NewConfig(map[string]BucketConfig{
		BucketAppShort:    {MaxRequests: 20, Window: 1 * time.Second},
		BucketAppLong:     {MaxRequests: 100, Window: 120 * time.Second},
		BucketAccount:     {MaxRequests: 20, Window: 1 * time.Second},
		BucketSummoner:    {MaxRequests: 20, Window: 1 * time.Second},
		BucketRank:        {MaxRequests: 20, Window: 1 * time.Second},
		BucketMatchIDs:    {MaxRequests: 2000, Window: 10 * time.Second},
		BucketMatchDetail: {MaxRequests: 2000, Window: 10 * time.Second},
	})
}

// appBuckets lists the application-tier buckets every request must satisfy.
var appBuckets = []string{BucketAppShort, BucketAppLong}
