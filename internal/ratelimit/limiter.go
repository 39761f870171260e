package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/JairoE/league-match-analyzer/internal/logging"
)

// ErrWaitRetriesExceeded is returned by WaitIfNeeded when a caller has been
// denied WaitMaxRetries times in a row. It exists so a misbehaving quota
// cannot wedge a job forever.
var ErrWaitRetriesExceeded = errors.New("rate limit wait retries exceeded")

// Limiter makes admission decisions against the shared window store.
//
// One Limiter is constructed per process at startup and passed explicitly
// to every component that issues Riot requests. The window state itself is
// shared (Redis), so independent processes still drain one quota; only the
// bucket config and the 429 cooldown deadline are process-local, and those
// converge quickly because every response re-seeds them via headers.
type Limiter struct {
	config *Config
	store  WindowStore
	log    *logging.Logger

	// Backoff bounds for WaitIfNeeded, seeded from the package constants.
	baseBackoff time.Duration
	maxBackoff  time.Duration

	cooldownMu sync.Mutex
	cooldownAt time.Time // zero when no cooldown is active
}

// NewLimiter creates a limiter owning the given config.
func NewLimiter(config *Config, store WindowStore, log *logging.Logger) *Limiter {
	return &Limiter{
		config:      config,
		store:       store,
		log:         log,
		baseBackoff: WaitBaseBackoff,
		maxBackoff:  WaitMaxBackoff,
	}
}

// Config returns the limiter's bucket configuration.
func (l *Limiter) Config() *Config {
	return l.config
}

// SetRetryAfter starts a global cooldown after a 429. Every bucket check
// denies until the deadline passes, overriding all window-level reasoning.
func (l *Limiter) SetRetryAfter(d time.Duration) {
	l.cooldownMu.Lock()
	defer l.cooldownMu.Unlock()
	deadline := time.Now().Add(d)
	if deadline.After(l.cooldownAt) {
		l.cooldownAt = deadline
	}
	l.log.Warn().Dur("retry_after", d).Msg("quota exceeded, global cooldown set")
}

// cooldownRemaining returns how long the active cooldown still has to run,
// or zero when none is active.
func (l *Limiter) cooldownRemaining() time.Duration {
	l.cooldownMu.Lock()
	defer l.cooldownMu.Unlock()
	remaining := time.Until(l.cooldownAt)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// CheckLimit decides whether one request may be admitted against a single
// bucket. When denied, wait is how long the caller should hold off.
//
// Unknown buckets admit with a warning: a misconfigured bucket name must
// never fail closed and block ingestion. Store errors admit for the same
// reason - counter loss degrades rate-limit accuracy, not correctness.
func (l *Limiter) CheckLimit(ctx context.Context, bucket string) (allowed bool, wait time.Duration, err error) {
	if remaining := l.cooldownRemaining(); remaining > 0 {
		return false, remaining, nil
	}

	cfg, ok := l.config.Get(bucket)
	if !ok {
		l.log.Warn().Str("bucket", bucket).Msg("unknown rate limit bucket, admitting")
		return true, 0, nil
	}

	now := time.Now()
	windowStart := now.Add(-cfg.Window)

	count, err := l.store.CountAndEvict(ctx, bucket, windowStart)
	if err != nil {
		if ctx.Err() != nil {
			return false, 0, ctx.Err()
		}
		l.log.Warn().Err(err).Str("bucket", bucket).Msg("window store unavailable, admitting")
		return true, 0, nil
	}

	if count >= cfg.MaxRequests {
		wait := l.waitForOldest(ctx, bucket, cfg, now)
		l.log.Debug().
			Str("bucket", bucket).
			Int("count", count).
			Int("max", cfg.MaxRequests).
			Dur("wait", wait).
			Msg("rate limit window full")
		return false, wait, nil
	}

	return true, 0, nil
}

// waitForOldest computes the time until the oldest surviving entry falls
// out of the window. Falls back to window/max when the oldest timestamp is
// unavailable.
func (l *Limiter) waitForOldest(ctx context.Context, bucket string, cfg BucketConfig, now time.Time) time.Duration {
	oldest, ok, err := l.store.OldestTimestamp(ctx, bucket)
	if err != nil || !ok {
		return cfg.Window / time.Duration(cfg.MaxRequests)
	}
	wait := oldest.Add(cfg.Window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// checkAllBuckets checks the operation's own bucket plus every app-tier
// bucket. A request must satisfy all of them.
func (l *Limiter) checkAllBuckets(ctx context.Context, bucket string) (bool, time.Duration, error) {
	allowed, wait, err := l.CheckLimit(ctx, bucket)
	if err != nil || !allowed {
		return allowed, wait, err
	}

	maxWait := wait
	for _, appBucket := range appBuckets {
		if appBucket == bucket {
			continue
		}
		appAllowed, appWait, err := l.CheckLimit(ctx, appBucket)
		if err != nil {
			return false, 0, err
		}
		if !appAllowed {
			if appWait > maxWait {
				maxWait = appWait
			}
			return false, maxWait, nil
		}
	}
	return true, 0, nil
}

// recordAllBuckets records one admitted request in the operation bucket and
// every app-tier bucket, without double-recording a bucket that serves as
// both.
func (l *Limiter) recordAllBuckets(ctx context.Context, bucket string) {
	now := time.Now()
	recorded := make(map[string]bool, 3)

	if cfg, ok := l.config.Get(bucket); ok {
		if err := l.store.Record(ctx, bucket, now, cfg.Window); err != nil {
			l.log.Warn().Err(err).Str("bucket", bucket).Msg("failed to record request")
		}
		recorded[bucket] = true
	}

	for _, appBucket := range appBuckets {
		if recorded[appBucket] {
			continue
		}
		cfg, ok := l.config.Get(appBucket)
		if !ok {
			continue
		}
		if err := l.store.Record(ctx, appBucket, now, cfg.Window); err != nil {
			l.log.Warn().Err(err).Str("bucket", appBucket).Msg("failed to record request")
		}
	}
}

// WaitIfNeeded blocks the calling goroutine until the request is admitted
// against the operation bucket and both app buckets, then records it in
// all of them.
//
// On denial it sleeps max(reported wait, exponential backoff with jitter)
// and rechecks, up to WaitMaxRetries rounds. The backoff floor matters when
// many workers contend: the reported wait alone would wake them all at the
// same instant.
func (l *Limiter) WaitIfNeeded(ctx context.Context, bucket string) error {
	for retries := 0; retries < WaitMaxRetries; retries++ {
		allowed, wait, err := l.checkAllBuckets(ctx, bucket)
		if err != nil {
			return err
		}
		if allowed {
			l.recordAllBuckets(ctx, bucket)
			return nil
		}

		backoff := l.baseBackoff << retries
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
		jitter := time.Duration(float64(backoff) * WaitJitterFactor * rand.Float64())
		sleep := backoff + jitter
		if wait > sleep {
			sleep = wait
		}

		l.log.Debug().
			Str("bucket", bucket).
			Int("retry", retries).
			Dur("sleep", sleep).
			Msg("rate limited, waiting")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.log.Error().Str("bucket", bucket).Int("retries", WaitMaxRetries).Msg("rate limit wait gave up")
	return ErrWaitRetriesExceeded
}
