// Package jobs implements the ingestion job queue, the pipeline that
// executes jobs, the worker pool that consumes them, and the scheduler
// that enqueues periodic account syncs.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Job names dispatched by the worker.
const (
	// JobSyncAccountMatches refreshes one account's match list and links.
	JobSyncAccountMatches = "sync_account_matches"

	// JobFetchMatchDetails fetches detail payloads for up to
	// DetailBatchSize matches.
	JobFetchMatchDetails = "fetch_match_details"
)

// DetailBatchSize is how many match ids one detail job carries. Small
// batches keep a single 429 storm from stalling a large job.
const DetailBatchSize = 5

// DedupTTL bounds how long a dedup key suppresses re-enqueueing the same
// work. A crashed worker's key expires rather than wedging the pipeline.
const DedupTTL = 30 * time.Minute

// ErrNoJob indicates the dequeue wait elapsed with nothing available.
var ErrNoJob = errors.New("no job available")

// Job is one unit of queued work. Args is an opaque JSON document owned
// by the job handler; DedupKey, when set, suppresses duplicate enqueues
// until the key expires or the job completes.
type Job struct {
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	DedupKey string          `json:"dedup_key,omitempty"`
}

// SyncAccountArgs is the payload of a sync_account_matches job.
type SyncAccountArgs struct {
	RiotAccountID string `json:"riot_account_id"`
}

// FetchDetailsArgs is the payload of a fetch_match_details job.
type FetchDetailsArgs struct {
	GameIDs []string `json:"game_ids"`
}

// Queue enqueues and dequeues jobs. Delivery is at least once; handlers
// must be idempotent.
type Queue interface {
	// Enqueue pushes a job. When the job carries a DedupKey that is
	// already reserved, the push is skipped and (false, nil) is returned.
	Enqueue(ctx context.Context, job Job) (bool, error)

	// Dequeue pops the next job, blocking up to wait. Returns ErrNoJob
	// when the wait elapses empty.
	Dequeue(ctx context.Context, wait time.Duration) (*Job, error)

	// Done acknowledges a dequeued job and releases its dedup key.
	Done(ctx context.Context, job *Job) error
}

// SyncDedupKey is the dedup key for an account sync job.
func SyncDedupKey(accountID string) string {
	return "sync_matches:" + accountID
}

// DetailsDedupKey is the dedup key for a detail batch. It is derived from
// the batch shape (first id, last id, length) so re-deriving the same
// batch yields the same key.
func DetailsDedupKey(gameIDs []string) string {
	if len(gameIDs) == 0 {
		return ""
	}
	return fmt.Sprintf("match_details:%s:%s:%d",
		gameIDs[0], gameIDs[len(gameIDs)-1], len(gameIDs))
}

// NewSyncAccountJob builds a sync job for one account.
func NewSyncAccountJob(accountID string) (Job, error) {
	args, err := json.Marshal(SyncAccountArgs{RiotAccountID: accountID})
	if err != nil {
		return Job{}, fmt.Errorf("marshal sync args: %w", err)
	}
	return Job{
		Name:     JobSyncAccountMatches,
		Args:     args,
		DedupKey: SyncDedupKey(accountID),
	}, nil
}

// NewFetchDetailsJob builds a detail-fetch job for one batch of game ids.
func NewFetchDetailsJob(gameIDs []string) (Job, error) {
	if len(gameIDs) == 0 {
		return Job{}, errors.New("detail job needs at least one game id")
	}
	args, err := json.Marshal(FetchDetailsArgs{GameIDs: gameIDs})
	if err != nil {
		return Job{}, fmt.Errorf("marshal detail args: %w", err)
	}
	return Job{
		Name:     JobFetchMatchDetails,
		Args:     args,
		DedupKey: DetailsDedupKey(gameIDs),
	}, nil
}

// partitionBatches splits ids into chunks of size. The final chunk may be
// short.
func partitionBatches(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

func (j Job) String() string {
	var b strings.Builder
	b.WriteString(j.Name)
	if j.DedupKey != "" {
		b.WriteString(" [")
		b.WriteString(j.DedupKey)
		b.WriteString("]")
	}
	return b.String()
}
