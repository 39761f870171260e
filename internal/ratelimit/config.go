package ratelimit

import (
	"sync"
	"time"
)

// BucketConfig holds the limit for a single named bucket.
type BucketConfig struct {
	// MaxRequests is the number of requests allowed inside Window.
	MaxRequests int

	// Window is the sliding window duration.
	Window time.Duration
}

// Config is the mutable set of bucket limits owned by a Limiter instance.
//
// Riot replaces limits at runtime through response headers, so the map is
// guarded rather than immutable. Config is an explicit dependency of the
// Limiter - there is no package-level default that header updates mutate
// behind the caller's back.
type Config struct {
	mu      sync.RWMutex
	buckets map[string]BucketConfig
}

// NewConfig creates a Config seeded with the given buckets.
func NewConfig(buckets map[string]BucketConfig) *Config {
	copied := make(map[string]BucketConfig, len(buckets))
	for name, cfg := range buckets {
		copied[name] = cfg
	}
	return &Config{buckets: copied}
}

// Get returns the config for a bucket and whether it is known.
func (c *Config) Get(bucket string) (BucketConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.buckets[bucket]
	return cfg, ok
}

// Set replaces the config for a bucket. Invalid limits are ignored so a
// malformed header can never zero out a bucket.
func (c *Config) Set(bucket string, cfg BucketConfig) {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[bucket] = cfg
}

// Buckets returns a snapshot of all bucket names.
func (c *Config) Buckets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.buckets))
	for name := range c.buckets {
		names = append(names, name)
	}
	return names
}
