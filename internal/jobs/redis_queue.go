package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JairoE/league-match-analyzer/internal/logging"
)

const (
	queueKey      = "jobs:queue"
	processingKey = "jobs:processing"
	dedupPrefix   = "jobs:dedup:"
)

// RedisQueue is the production Queue. Jobs travel LPUSH -> BRPOPLPUSH so
// a dequeued job sits on a processing list until acknowledged; dedup keys
// are SET NX with a TTL so a crashed worker cannot suppress work forever.
type RedisQueue struct {
	rdb *redis.Client
	log *logging.Logger
}

// NewRedisQueue creates a queue over an existing Redis client.
func NewRedisQueue(rdb *redis.Client, log *logging.Logger) *RedisQueue {
	return &RedisQueue{rdb: rdb, log: log}
}

// Enqueue pushes the job unless its dedup key is already reserved.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	if job.DedupKey != "" {
		reserved, err := q.rdb.SetNX(ctx, dedupPrefix+job.DedupKey, "1", DedupTTL).Result()
		if err != nil {
			return false, fmt.Errorf("reserve dedup key: %w", err)
		}
		if !reserved {
			q.log.Debug().Str("job", job.String()).Msg("duplicate job skipped")
			return false, nil
		}
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		// Release the reservation so the work can be retried.
		if job.DedupKey != "" {
			q.rdb.Del(ctx, dedupPrefix+job.DedupKey)
		}
		return false, fmt.Errorf("enqueue job: %w", err)
	}
	return true, nil
}

// Dequeue moves the oldest job to the processing list and returns it.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	payload, err := q.rdb.BRPopLPush(ctx, queueKey, processingKey, wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Drop the malformed entry so it cannot poison the queue.
		q.rdb.LRem(ctx, processingKey, 1, payload)
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Done removes the job from the processing list and releases its dedup
// key so the same work can be scheduled again.
func (q *RedisQueue) Done(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LRem(ctx, processingKey, 1, payload).Err(); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	if job.DedupKey != "" {
		if err := q.rdb.Del(ctx, dedupPrefix+job.DedupKey).Err(); err != nil {
			return fmt.Errorf("release dedup key: %w", err)
		}
	}
	return nil
}

// Depth reports the queued and in-flight job counts.
func (q *RedisQueue) Depth(ctx context.Context) (queued, processing int64, err error) {
	queued, err = q.rdb.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	processing, err = q.rdb.LLen(ctx, processingKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("processing depth: %w", err)
	}
	return queued, processing, nil
}
