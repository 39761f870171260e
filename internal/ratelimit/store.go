package ratelimit

import (
	"context"
	"time"
)

// WindowStore is the shared sliding-window counter store.
//
// State lives outside the process so request handlers and background
// workers collectively respect one quota. The store only needs three
// primitives; everything else (admission decisions, backoff, cooldowns)
// is the Limiter's job.
//
// Concurrency contract: CountAndEvict must evict entries older than
// windowStart before counting, atomically enough that concurrent callers
// can only OVER-count, never under-count. Over-counting wastes a little
// quota; under-counting risks exceeding Riot's real limit.
type WindowStore interface {
	// Record inserts one request entry at the given time. The entry must
	// expire with the bucket's key TTL so abandoned buckets self-clean.
	Record(ctx context.Context, bucket string, now time.Time, ttl time.Duration) error

	// CountAndEvict removes entries older than windowStart and returns the
	// number of entries remaining in the window.
	CountAndEvict(ctx context.Context, bucket string, windowStart time.Time) (int, error)

	// OldestTimestamp returns the timestamp of the oldest surviving entry.
	// ok is false when the bucket is empty.
	OldestTimestamp(ctx context.Context, bucket string) (t time.Time, ok bool, err error)
}
