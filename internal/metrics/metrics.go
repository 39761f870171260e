// Package metrics records coarse job counters in Redis so operators can
// inspect ingestion throughput without a metrics backend.
package metrics

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/JairoE/league-match-analyzer/internal/logging"
)

const counterHashKey = "metrics:jobs"

// Recorder increments named counters in a Redis hash. Recording is best
// effort: a failed increment is logged and swallowed, never surfaced to
// the job that triggered it.
type Recorder struct {
	rdb *redis.Client
	log *logging.Logger
}

// NewRecorder creates a recorder over an existing Redis client.
func NewRecorder(rdb *redis.Client, log *logging.Logger) *Recorder {
	return &Recorder{rdb: rdb, log: log}
}

// Increment adds one to the named counter.
func (r *Recorder) Increment(ctx context.Context, name string) {
	r.Add(ctx, name, 1)
}

// Add adds delta to the named counter.
func (r *Recorder) Add(ctx context.Context, name string, delta int64) {
	if r == nil || r.rdb == nil {
		return
	}
	if err := r.rdb.HIncrBy(ctx, counterHashKey, name, delta).Err(); err != nil {
		r.log.Warn().Err(err).Str("counter", name).Msg("metric increment failed")
	}
}

// Snapshot returns all counters. Used by the CLI status command.
func (r *Recorder) Snapshot(ctx context.Context) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, counterHashKey).Result()
}
