package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryWindowStore is an in-process WindowStore for tests and single-node
// runs. It keeps per-bucket timestamp slices ordered by insertion time,
// which matches how entries are recorded (monotonically at "now").
//
// It obviously cannot coordinate across processes; production deployments
// use RedisWindowStore.
type MemoryWindowStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewMemoryWindowStore creates an empty in-memory window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{buckets: make(map[string][]time.Time)}
}

// Record implements WindowStore. TTL is ignored; memory is reclaimed by
// eviction on the next read.
func (s *MemoryWindowStore) Record(ctx context.Context, bucket string, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket] = append(s.buckets[bucket], now)
	return nil
}

// CountAndEvict implements WindowStore.
func (s *MemoryWindowStore) CountAndEvict(ctx context.Context, bucket string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.buckets[bucket]
	firstValid := 0
	for firstValid < len(entries) && !entries[firstValid].After(windowStart) {
		firstValid++
	}
	if firstValid > 0 {
		entries = append([]time.Time(nil), entries[firstValid:]...)
		s.buckets[bucket] = entries
	}
	return len(entries), nil
}

// OldestTimestamp implements WindowStore.
func (s *MemoryWindowStore) OldestTimestamp(ctx context.Context, bucket string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.buckets[bucket]
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	return entries[0], true, nil
}
