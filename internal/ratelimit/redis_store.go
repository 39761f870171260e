package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore keeps each bucket's window in a Redis sorted set under
// rl:<bucket>, scored by request timestamp. Every process that shares the
// Redis instance shares the quota.
//
// Eviction and counting run in one pipeline. Pipelines are not atomic with
// respect to other clients, but an insert landing between our evict and our
// count can only inflate the count - the acceptable direction (see
// WindowStore).
type RedisWindowStore struct {
	rdb *redis.Client
}

// NewRedisWindowStore creates a window store backed by the given client.
func NewRedisWindowStore(rdb *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{rdb: rdb}
}

func windowKey(bucket string) string {
	return "rl:" + bucket
}

// score converts a time to the float seconds used as the member score.
func score(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Record implements WindowStore. The member is unique per insertion so two
// requests in the same nanosecond still count twice. The key TTL runs
// slightly past the window so an idle bucket disappears on its own.
func (s *RedisWindowStore) Record(ctx context.Context, bucket string, now time.Time, ttl time.Duration) error {
	key := windowKey(bucket)
	member := fmt.Sprintf("%.9f:%d", score(now), rand.Int63())

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score(now), Member: member})
	pipe.Expire(ctx, key, ttl+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record %s: %w", bucket, err)
	}
	return nil
}

// CountAndEvict implements WindowStore.
func (s *RedisWindowStore) CountAndEvict(ctx context.Context, bucket string, windowStart time.Time) (int, error) {
	key := windowKey(bucket)

	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(score(windowStart), 'f', -1, 64))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count %s: %w", bucket, err)
	}
	return int(card.Val()), nil
}

// OldestTimestamp implements WindowStore.
func (s *RedisWindowStore) OldestTimestamp(ctx context.Context, bucket string) (time.Time, bool, error) {
	entries, err := s.rdb.ZRangeWithScores(ctx, windowKey(bucket), 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest %s: %w", bucket, err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	sec := entries[0].Score
	return time.Unix(0, int64(sec*float64(time.Second))), true, nil
}
