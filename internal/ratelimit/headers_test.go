package ratelimit

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/JairoE/league-match-analyzer/internal/logging"
)

func headerLimiter() *Limiter {
	return NewLimiter(DefaultConfig(), NewMemoryWindowStore(), logging.NewLogger(io.Discard))
}

// TestAppHeaderAssignsByWindowSize verifies the smallest window lands in
// app_short and the largest in app_long regardless of header order.
func TestAppHeaderAssignsByWindowSize(t *testing.T) {
	for _, value := range []string{"20:1,100:120", "100:120,20:1"} {
		limiter := headerLimiter()
		headers := http.Header{}
		headers.Set("X-App-Rate-Limit", value)

		limiter.UpdateFromHeaders(BucketMatchIDs, headers)

		short, _ := limiter.Config().Get(BucketAppShort)
		long, _ := limiter.Config().Get(BucketAppLong)
		if short.MaxRequests != 20 || short.Window != time.Second {
			t.Errorf("header %q: app_short = %+v, want 20/1s", value, short)
		}
		if long.MaxRequests != 100 || long.Window != 120*time.Second {
			t.Errorf("header %q: app_long = %+v, want 100/120s", value, long)
		}
	}
}

// TestMethodHeaderUpdatesRequestBucket verifies the method family only
// touches the bucket the request was counted against.
func TestMethodHeaderUpdatesRequestBucket(t *testing.T) {
	limiter := headerLimiter()
	headers := http.Header{}
	headers.Set("X-Method-Rate-Limit", "500:10")

	limiter.UpdateFromHeaders(BucketMatchDetail, headers)

	cfg, _ := limiter.Config().Get(BucketMatchDetail)
	if cfg.MaxRequests != 500 || cfg.Window != 10*time.Second {
		t.Errorf("match_detail = %+v, want 500/10s", cfg)
	}

	other, _ := limiter.Config().Get(BucketAccount)
	seed, _ := DefaultConfig().Get(BucketAccount)
	if other != seed {
		t.Errorf("account bucket changed to %+v", other)
	}
}

// TestMethodHeaderPicksMostRestrictiveWindow verifies that when a method
// header lists several windows, the smallest one wins.
func TestMethodHeaderPicksMostRestrictiveWindow(t *testing.T) {
	limiter := headerLimiter()
	headers := http.Header{}
	headers.Set("X-Method-Rate-Limit", "2000:60,50:10")

	limiter.UpdateFromHeaders(BucketSummoner, headers)

	cfg, _ := limiter.Config().Get(BucketSummoner)
	if cfg.MaxRequests != 50 || cfg.Window != 10*time.Second {
		t.Errorf("summoner = %+v, want 50/10s", cfg)
	}
}

// TestLegacyHeaderIgnoredWhenModernPresent verifies the legacy family is a
// fallback only.
func TestLegacyHeaderIgnoredWhenModernPresent(t *testing.T) {
	limiter := headerLimiter()
	headers := http.Header{}
	headers.Set("X-App-Rate-Limit", "20:1,100:120")
	headers.Set("X-Rate-Limit", "1:1")
	headers.Set("X-Rate-Limit-Type", "application")

	limiter.UpdateFromHeaders(BucketAccount, headers)

	short, _ := limiter.Config().Get(BucketAppShort)
	if short.MaxRequests != 20 {
		t.Errorf("app_short = %+v, legacy header should have been ignored", short)
	}
}

// TestLegacyApplicationHeader verifies the legacy application fallback.
func TestLegacyApplicationHeader(t *testing.T) {
	limiter := headerLimiter()
	headers := http.Header{}
	headers.Set("X-Rate-Limit", "10:1,50:60")
	headers.Set("X-Rate-Limit-Type", "application")

	limiter.UpdateFromHeaders(BucketAccount, headers)

	short, _ := limiter.Config().Get(BucketAppShort)
	long, _ := limiter.Config().Get(BucketAppLong)
	if short.MaxRequests != 10 || short.Window != time.Second {
		t.Errorf("app_short = %+v, want 10/1s", short)
	}
	if long.MaxRequests != 50 || long.Window != 60*time.Second {
		t.Errorf("app_long = %+v, want 50/60s", long)
	}
}

// TestLegacyMethodHeader verifies a non-application legacy type updates the
// request bucket.
func TestLegacyMethodHeader(t *testing.T) {
	limiter := headerLimiter()
	headers := http.Header{}
	headers.Set("X-Rate-Limit", "30:10")
	headers.Set("X-Rate-Limit-Type", "method")

	limiter.UpdateFromHeaders(BucketRank, headers)

	cfg, _ := limiter.Config().Get(BucketRank)
	if cfg.MaxRequests != 30 || cfg.Window != 10*time.Second {
		t.Errorf("rank = %+v, want 30/10s", cfg)
	}
}

// TestParseLimitHeaderSkipsMalformedChunks verifies junk chunks are dropped
// without discarding the valid ones.
func TestParseLimitHeaderSkipsMalformedChunks(t *testing.T) {
	pairs := parseLimitHeader("garbage,20:1,:5,100:,0:10,-1:2,100:120")
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2: %+v", len(pairs), pairs)
	}
	if pairs[0].maxRequests != 20 || pairs[0].window != time.Second {
		t.Errorf("pairs[0] = %+v, want 20/1s", pairs[0])
	}
	if pairs[1].maxRequests != 100 || pairs[1].window != 120*time.Second {
		t.Errorf("pairs[1] = %+v, want 100/120s", pairs[1])
	}
}

// TestParseLimitHeaderEmpty verifies a fully malformed header yields no
// pairs and no update.
func TestParseLimitHeaderEmpty(t *testing.T) {
	if pairs := parseLimitHeader("not-a-limit"); len(pairs) != 0 {
		t.Errorf("got %+v, want none", pairs)
	}

	limiter := headerLimiter()
	headers := http.Header{}
	headers.Set("X-App-Rate-Limit", "not-a-limit")
	limiter.UpdateFromHeaders(BucketAccount, headers)

	short, _ := limiter.Config().Get(BucketAppShort)
	seed, _ := DefaultConfig().Get(BucketAppShort)
	if short != seed {
		t.Errorf("app_short changed to %+v on malformed header", short)
	}
}
