package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/JairoE/league-match-analyzer/internal/logging"
	"github.com/JairoE/league-match-analyzer/internal/ratelimit"
)

// Default client tuning. MaxRetries is one shared budget covering 429s,
// 5xxs, and network failures alike; client errors (other 4xx) never retry
// because they will not succeed on retry.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 5

	retryBackoffBase = 1 * time.Second
	retryBackoffMax  = 30 * time.Second

	// defaultRetryAfter is used when a 429 carries no parseable
	// Retry-After header.
	defaultRetryAfter = 1 * time.Second

	credentialHeader = "X-Riot-Token"

	// placeholderAPIKey is the unset marker in the sample config.
	placeholderAPIKey = "replace-me"
)

// Options configures a Client.
type Options struct {
	// APIKey is the Riot service credential, sent as X-Riot-Token.
	APIKey string

	// RegionBaseURL hosts the account and match endpoints
	// (e.g. https://americas.api.riotgames.com).
	RegionBaseURL string

	// PlatformBaseURL hosts the summoner and league endpoints
	// (e.g. https://na1.api.riotgames.com).
	PlatformBaseURL string

	// Timeout applies per HTTP attempt. Exceeding it is a network error
	// for retry purposes.
	Timeout time.Duration

	// MaxRetries bounds the shared retry budget. Zero means
	// DefaultMaxRetries.
	MaxRetries int
}

// Client calls the Riot API. Every request blocks on the rate limiter
// until admitted, feeds response headers back into the limiter, and
// retries transient failures with bounded exponential backoff.
//
// A Client is constructed once at process start and passed into every
// component that needs it; it is safe for concurrent use.
type Client struct {
	opts    Options
	limiter *ratelimit.Limiter
	retry   *retryablehttp.Client
	log     *logging.Logger
}

// bucketKey carries the rate limit bucket through the request context so
// the retry hooks can resolve it per attempt.
type bucketKey struct{}

func requestBucket(ctx context.Context) string {
	bucket, _ := ctx.Value(bucketKey{}).(string)
	return bucket
}

// retryLogger adapts our logger to retryablehttp's LeveledLogger.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Interface("detail", keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Interface("detail", keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Per-attempt info is too chatty for ingestion workloads.
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Interface("detail", keysAndValues).Msg(msg)
}

// NewClient creates a Riot API client gated by the given limiter.
func NewClient(opts Options, limiter *ratelimit.Limiter, log *logging.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	opts.RegionBaseURL = strings.TrimSuffix(opts.RegionBaseURL, "/")
	opts.PlatformBaseURL = strings.TrimSuffix(opts.PlatformBaseURL, "/")

	c := &Client{
		opts:    opts,
		limiter: limiter,
		log:     log,
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &nethttp.Client{Timeout: opts.Timeout}
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = retryBackoffBase
	retryClient.RetryWaitMax = retryBackoffMax
	retryClient.Logger = &retryLogger{log: log}
	retryClient.CheckRetry = c.checkRetry
	retryClient.Backoff = c.backoff
	retryClient.PrepareRetry = c.prepareRetry
	retryClient.ErrorHandler = c.errorHandler
	c.retry = retryClient

	return c
}

// checkRetry classifies each attempt's outcome.
//
//   - network error: retry
//   - 429: start the global cooldown from Retry-After, then retry
//   - >= 500: retry
//   - any other status: done (the caller decides success vs client error)
//
// Every received response also re-seeds the limiter's bucket config from
// its rate limit headers, successful or not.
func (c *Client) checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp == nil {
		return true, nil
	}

	bucket := requestBucket(resp.Request.Context())
	c.limiter.UpdateFromHeaders(bucket, resp.Header)

	switch {
	case resp.StatusCode == nethttp.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header)
		c.limiter.SetRetryAfter(wait)
		c.log.Warn().
			Str("bucket", bucket).
			Dur("retry_after", wait).
			Msg("riot api throttled request")
		return true, nil
	case resp.StatusCode >= 500:
		return true, nil
	default:
		return false, nil
	}
}

// backoff picks the sleep before the next attempt: the server-suggested
// wait for a 429, capped full-jitter exponential backoff otherwise.
func (c *Client) backoff(min, max time.Duration, attemptNum int, resp *nethttp.Response) time.Duration {
	if resp != nil && resp.StatusCode == nethttp.StatusTooManyRequests {
		return parseRetryAfter(resp.Header)
	}

	backoff := min << attemptNum
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	// Full jitter spreads simultaneous retries from many workers.
	return time.Duration(rand.Int63n(int64(backoff)) + 1)
}

// prepareRetry blocks on the rate limiter before each retry attempt. The
// first attempt waits in getJSON; retries must re-earn admission too.
func (c *Client) prepareRetry(req *nethttp.Request) error {
	bucket := requestBucket(req.Context())
	return c.limiter.WaitIfNeeded(req.Context(), bucket)
}

// errorHandler converts an exhausted retry budget into a structured error
// carrying the last known status and body.
func (c *Client) errorHandler(resp *nethttp.Response, err error, numTries int) (*nethttp.Response, error) {
	reqErr := &RequestError{
		Message: fmt.Sprintf("riot api failed after %d attempts", numTries),
		Err:     ErrRetryBudgetExhausted,
	}
	if err != nil {
		reqErr.Err = fmt.Errorf("%w: %w", ErrRetryBudgetExhausted, err)
	}
	if resp != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		reqErr.Status = resp.StatusCode
		reqErr.Body = string(body)
	}
	return nil, reqErr
}

// parseRetryAfter reads the Retry-After header in seconds.
func parseRetryAfter(headers nethttp.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

// getJSON performs one logical GET against the named bucket and decodes
// the response into out.
func (c *Client) getJSON(ctx context.Context, bucket, requestURL string, out interface{}) error {
	if c.opts.APIKey == "" || c.opts.APIKey == placeholderAPIKey {
		return &RequestError{Message: "riot api credential not configured", Err: ErrMissingAPIKey}
	}

	if err := c.limiter.WaitIfNeeded(ctx, bucket); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	ctx = context.WithValue(ctx, bucketKey{}, bucket)
	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(credentialHeader, c.opts.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.retry.Do(req)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return err
		}
		return &RequestError{Message: "riot api request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{
			Message: "riot api request rejected",
			Status:  resp.StatusCode,
			Body:    string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode riot response: %w", err)
	}
	return nil
}

// FetchAccountByRiotID retrieves the account payload for gameName#tagLine.
func (c *Client) FetchAccountByRiotID(ctx context.Context, gameName, tagLine string) (*Account, error) {
	requestURL := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.opts.RegionBaseURL, url.PathEscape(gameName), url.PathEscape(tagLine))

	var account Account
	if err := c.getJSON(ctx, ratelimit.BucketAccount, requestURL, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// FetchSummonerByPUUID retrieves the summoner profile for a PUUID.
func (c *Client) FetchSummonerByPUUID(ctx context.Context, puuid string) (*Summoner, error) {
	requestURL := fmt.Sprintf("%s/lol/summoner/v4/summoners/by-puuid/%s",
		c.opts.PlatformBaseURL, url.PathEscape(puuid))

	var summoner Summoner
	if err := c.getJSON(ctx, ratelimit.BucketSummoner, requestURL, &summoner); err != nil {
		return nil, err
	}
	return &summoner, nil
}

// FetchRankByPUUID retrieves the ranked entries for a PUUID. An empty
// slice means the account has no ranked record; that is not an error and
// is distinct from the account not existing (a 404).
func (c *Client) FetchRankByPUUID(ctx context.Context, puuid string) ([]RankEntry, error) {
	requestURL := fmt.Sprintf("%s/lol/league/v4/entries/by-puuid/%s",
		c.opts.PlatformBaseURL, url.PathEscape(puuid))

	var entries []RankEntry
	if err := c.getJSON(ctx, ratelimit.BucketRank, requestURL, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FetchMatchIDs retrieves a page of match ids for a PUUID, newest first.
// A zero-result page is valid.
func (c *Client) FetchMatchIDs(ctx context.Context, puuid string, start, count int) ([]string, error) {
	requestURL := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?start=%d&count=%d",
		c.opts.RegionBaseURL, url.PathEscape(puuid), start, count)

	var ids []string
	if err := c.getJSON(ctx, ratelimit.BucketMatchIDs, requestURL, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchMatchByID retrieves the raw match detail payload. The payload is
// stored opaquely; only the start timestamp is derived from it.
func (c *Client) FetchMatchByID(ctx context.Context, matchID string) (json.RawMessage, error) {
	requestURL := fmt.Sprintf("%s/lol/match/v5/matches/%s",
		c.opts.RegionBaseURL, url.PathEscape(matchID))

	var payload json.RawMessage
	if err := c.getJSON(ctx, ratelimit.BucketMatchDetail, requestURL, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
