package ratelimit

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Riot rate limit response headers.
//
// The application family reports every app-tier window on one line, e.g.
// "20:1,100:120" meaning 20 requests per 1 second and 100 per 120 seconds.
// The method family reports the window(s) of the endpoint that was called.
// Legacy gateways send a single X-Rate-Limit line with a type header
// instead; that format is honored only when the two-family headers are
// absent.
const (
	headerAppLimit    = "X-App-Rate-Limit"
	headerMethodLimit = "X-Method-Rate-Limit"
	headerLegacyLimit = "X-Rate-Limit"
	headerLegacyType  = "X-Rate-Limit-Type"

	legacyTypeApplication = "application"
)

// limitPair is one (max requests, window) entry parsed from a limit header.
type limitPair struct {
	maxRequests int
	window      time.Duration
}

// parseLimitHeader parses a "max:window,max:window" header value into pairs
// sorted by window ascending. Malformed chunks are skipped.
func parseLimitHeader(value string) []limitPair {
	var pairs []limitPair
	for _, part := range strings.Split(value, ",") {
		chunk := strings.TrimSpace(part)
		if chunk == "" || !strings.Contains(chunk, ":") {
			continue
		}
		maxStr, windowStr, _ := strings.Cut(chunk, ":")
		maxRequests, err := strconv.Atoi(strings.TrimSpace(maxStr))
		if err != nil {
			continue
		}
		windowSeconds, err := strconv.Atoi(strings.TrimSpace(windowStr))
		if err != nil {
			continue
		}
		if maxRequests <= 0 || windowSeconds <= 0 {
			continue
		}
		pairs = append(pairs, limitPair{
			maxRequests: maxRequests,
			window:      time.Duration(windowSeconds) * time.Second,
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].window < pairs[j].window
	})
	return pairs
}

// UpdateFromHeaders applies Riot's limit headers to the bucket config.
//
// The smallest-window application pair replaces app_short and the
// largest-window pair replaces app_long, regardless of the order Riot
// lists them in. The most restrictive (smallest-window) method pair
// replaces the bucket the request was counted against. The legacy
// single-family format is applied only when neither modern header is
// present, using X-Rate-Limit-Type to decide which tier it describes.
func (l *Limiter) UpdateFromHeaders(bucket string, headers http.Header) {
	appHeader := headers.Get(headerAppLimit)
	methodHeader := headers.Get(headerMethodLimit)

	if appHeader != "" {
		if pairs := parseLimitHeader(appHeader); len(pairs) > 0 {
			smallest := pairs[0]
			largest := pairs[len(pairs)-1]
			l.config.Set(BucketAppShort, BucketConfig{
				MaxRequests: smallest.maxRequests,
				Window:      smallest.window,
			})
			l.config.Set(BucketAppLong, BucketConfig{
				MaxRequests: largest.maxRequests,
				Window:      largest.window,
			})
			l.log.Debug().
				Str("bucket", bucket).
				Int("short_max", smallest.maxRequests).
				Dur("short_window", smallest.window).
				Int("long_max", largest.maxRequests).
				Dur("long_window", largest.window).
				Msg("app rate limits updated from headers")
		}
	}

	if methodHeader != "" {
		if pairs := parseLimitHeader(methodHeader); len(pairs) > 0 {
			most := pairs[0]
			l.config.Set(bucket, BucketConfig{
				MaxRequests: most.maxRequests,
				Window:      most.window,
			})
			l.log.Debug().
				Str("bucket", bucket).
				Int("max", most.maxRequests).
				Dur("window", most.window).
				Msg("method rate limit updated from headers")
		}
	}

	// Legacy fallback: only when neither modern family was present.
	if appHeader != "" || methodHeader != "" {
		return
	}
	legacyHeader := headers.Get(headerLegacyLimit)
	if legacyHeader == "" {
		return
	}
	pairs := parseLimitHeader(legacyHeader)
	if len(pairs) == 0 {
		return
	}

	if strings.EqualFold(headers.Get(headerLegacyType), legacyTypeApplication) {
		smallest := pairs[0]
		largest := pairs[len(pairs)-1]
		l.config.Set(BucketAppShort, BucketConfig{
			MaxRequests: smallest.maxRequests,
			Window:      smallest.window,
		})
		l.config.Set(BucketAppLong, BucketConfig{
			MaxRequests: largest.maxRequests,
			Window:      largest.window,
		})
		l.log.Debug().
			Str("bucket", bucket).
			Msg("app rate limits updated from legacy header")
		return
	}

	most := pairs[0]
	l.config.Set(bucket, BucketConfig{
		MaxRequests: most.maxRequests,
		Window:      most.window,
	})
	l.log.Debug().
		Str("bucket", bucket).
		Int("max", most.maxRequests).
		Dur("window", most.window).
		Msg("method rate limit updated from legacy header")
}
