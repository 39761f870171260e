package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JairoE/league-match-analyzer/internal/logging"
	"github.com/JairoE/league-match-analyzer/internal/metrics"
	"github.com/JairoE/league-match-analyzer/internal/models"
	"github.com/JairoE/league-match-analyzer/internal/riot"
	"github.com/JairoE/league-match-analyzer/internal/store"
)

// matchPageSize is how many match ids one sync fetches by default. Recent
// activity is what the scheduler cares about; deep backfill happens with
// explicit start/count paging, not one large page.
const matchPageSize = 20

// InlineBackfillMax caps how many detail payloads a one-shot sync will
// fetch inline instead of handing to the queue.
const InlineBackfillMax = 20

// MatchStore is the persistence surface the pipeline needs.
type MatchStore interface {
	AccountByID(ctx context.Context, accountID string) (*models.RiotAccount, error)
	UpsertMatchesForAccount(ctx context.Context, accountID string, gameIDs []string) (int, error)
	GameIDsMissingDetail(ctx context.Context, gameIDs []string) ([]string, error)
	UpdateMatchDetails(ctx context.Context, updates []store.MatchDetailUpdate) (int, []string, error)
	TouchAccountActivity(ctx context.Context, accountID string) error
}

// MatchFetcher is the Riot API surface the pipeline needs.
type MatchFetcher interface {
	FetchMatchIDs(ctx context.Context, puuid string, start, count int) ([]string, error)
	FetchMatchByID(ctx context.Context, matchID string) (json.RawMessage, error)
}

// Pipeline executes ingestion jobs. Every operation is idempotent:
// re-running a sync or a detail batch converges on the same stored state.
type Pipeline struct {
	store           MatchStore
	client          MatchFetcher
	queue           Queue
	metrics         *metrics.Recorder
	log             *logging.Logger
	defaultPlatform string
}

// NewPipeline wires a pipeline. metrics may be nil.
func NewPipeline(st MatchStore, client MatchFetcher, queue Queue, rec *metrics.Recorder, log *logging.Logger, defaultPlatform string) *Pipeline {
	return &Pipeline{
		store:           st,
		client:          client,
		queue:           queue,
		metrics:         rec,
		log:             log,
		defaultPlatform: defaultPlatform,
	}
}

// Summary reports one account sync. DetailsEnqueued counts game ids
// handed to the queue for detail fetching, not queue entries.
type Summary struct {
	RiotAccountID   string
	GameIDs         []string
	Fetched         int
	NewLinks        int
	DetailsEnqueued int
}

// SyncAccount refreshes one account's match history: fetch a page of
// match ids, upsert shells and links, and enqueue detail jobs for
// whatever still lacks a payload. count <= 0 fetches the default page.
func (p *Pipeline) SyncAccount(ctx context.Context, accountID string, start, count int) (*Summary, error) {
	account, err := p.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if count <= 0 {
		count = matchPageSize
	}
	ids, err := p.client.FetchMatchIDs(ctx, account.PUUID, start, count)
	if err != nil {
		return nil, fmt.Errorf("fetch match ids: %w", err)
	}

	gameIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		normalized, wasNormalized := riot.NormalizeMatchID(id, p.defaultPlatform)
		if wasNormalized {
			p.log.Debug().Str("game_id", id).Str("normalized", normalized).Msg("match id normalized")
		}
		gameIDs = append(gameIDs, normalized)
	}

	newLinks, err := p.store.UpsertMatchesForAccount(ctx, accountID, gameIDs)
	if err != nil {
		return nil, err
	}

	detailsEnqueued, err := p.EnqueueMissingDetailJobs(ctx, gameIDs)
	if err != nil {
		return nil, err
	}

	if err := p.store.TouchAccountActivity(ctx, accountID); err != nil {
		p.log.Warn().Err(err).Str("riot_account_id", accountID).Msg("activity touch failed")
	}

	p.metrics.Increment(ctx, "sync_account_matches")
	p.metrics.Add(ctx, "match_links_created", int64(newLinks))

	summary := &Summary{
		RiotAccountID:   accountID,
		GameIDs:         gameIDs,
		Fetched:         len(gameIDs),
		NewLinks:        newLinks,
		DetailsEnqueued: detailsEnqueued,
	}
	p.log.Info().
		Str("riot_account_id", accountID).
		Int("fetched", summary.Fetched).
		Int("new_links", summary.NewLinks).
		Int("details_enqueued", summary.DetailsEnqueued).
		Msg("account sync complete")
	return summary, nil
}

// EnqueueMissingDetailJobs filters gameIDs down to those still missing a
// detail payload and enqueues one fetch_match_details job per batch of
// DetailBatchSize. Returns the number of ids actually enqueued; ids in
// batches suppressed by dedup do not count.
func (p *Pipeline) EnqueueMissingDetailJobs(ctx context.Context, gameIDs []string) (int, error) {
	missing, err := p.store.GameIDsMissingDetail(ctx, gameIDs)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	enqueued := 0
	for _, batch := range partitionBatches(missing, DetailBatchSize) {
		job, err := NewFetchDetailsJob(batch)
		if err != nil {
			return enqueued, err
		}
		pushed, err := p.queue.Enqueue(ctx, job)
		if err != nil {
			return enqueued, fmt.Errorf("enqueue detail batch: %w", err)
		}
		if pushed {
			enqueued += len(batch)
		}
	}
	return enqueued, nil
}

// DetailResult reports one detail batch.
type DetailResult struct {
	// Status is "ok" when every id in the batch was handled, "partial"
	// when some fetches failed. Partial batches still commit whatever
	// succeeded.
	Status  string
	Fetched int
	Errors  []error
}

// FetchDetails fetches and persists the payloads for one batch of game
// ids. Per-id failures are collected rather than aborting the batch; the
// successes commit in one transaction and the failures stay missing, so
// a later sync re-enqueues them.
func (p *Pipeline) FetchDetails(ctx context.Context, gameIDs []string) (*DetailResult, error) {
	result := &DetailResult{Status: "ok"}

	updates := make([]store.MatchDetailUpdate, 0, len(gameIDs))
	for _, gameID := range gameIDs {
		payload, err := p.client.FetchMatchByID(ctx, gameID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Errors = append(result.Errors, fmt.Errorf("fetch %s: %w", gameID, err))
			p.log.Warn().Err(err).Str("game_id", gameID).Msg("match detail fetch failed")
			continue
		}

		update := store.MatchDetailUpdate{GameID: gameID, GameInfo: payload}
		if ts, ok := riot.MatchStartTimestamp(payload); ok {
			update.GameStartTimestamp = &ts
		}
		updates = append(updates, update)
	}

	if len(updates) > 0 {
		updated, missing, err := p.store.UpdateMatchDetails(ctx, updates)
		if err != nil {
			return nil, err
		}
		result.Fetched = updated
		for _, gameID := range missing {
			result.Errors = append(result.Errors, fmt.Errorf("no match record for %s", gameID))
		}
	}

	if len(result.Errors) > 0 {
		result.Status = "partial"
	}

	p.metrics.Increment(ctx, "fetch_match_details")
	p.metrics.Add(ctx, "match_details_stored", int64(result.Fetched))

	p.log.Info().
		Int("batch", len(gameIDs)).
		Int("stored", result.Fetched).
		Int("failed", len(result.Errors)).
		Str("status", result.Status).
		Msg("detail batch complete")
	return result, nil
}

// BackfillDetailsInline fetches up to max missing payloads for the given
// game ids right now, bypassing the queue. The one-shot CLI sync uses it
// so small histories finish in one invocation; anything past the cap
// still goes through queued detail jobs.
func (p *Pipeline) BackfillDetailsInline(ctx context.Context, gameIDs []string, max int) (*DetailResult, error) {
	missing, err := p.store.GameIDsMissingDetail(ctx, gameIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return &DetailResult{Status: "ok"}, nil
	}
	if max > 0 && len(missing) > max {
		missing = missing[:max]
	}
	return p.FetchDetails(ctx, missing)
}

// jobTimeoutContext derives a bounded context for one job execution.
func jobTimeoutContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
