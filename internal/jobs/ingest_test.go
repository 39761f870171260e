package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/JairoE/league-match-analyzer/internal/logging"
	"github.com/JairoE/league-match-analyzer/internal/models"
	"github.com/JairoE/league-match-analyzer/internal/store"
)

// fakeStore is an in-memory MatchStore tracking what the pipeline persists.
type fakeStore struct {
	account *models.RiotAccount

	// details maps game id -> stored payload. A shell exists for every
	// key in shells.
	shells  map[string]bool
	details map[string]json.RawMessage
	links   map[string]bool

	upsertCalls  int
	touchedCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		account: &models.RiotAccount{ID: "acct-1", RiotID: "Faker#NA1", PUUID: "p-1"},
		shells:  make(map[string]bool),
		details: make(map[string]json.RawMessage),
		links:   make(map[string]bool),
	}
}

func (f *fakeStore) AccountByID(ctx context.Context, accountID string) (*models.RiotAccount, error) {
	if f.account == nil || f.account.ID != accountID {
		return nil, store.ErrAccountNotFound
	}
	return f.account, nil
}

func (f *fakeStore) UpsertMatchesForAccount(ctx context.Context, accountID string, gameIDs []string) (int, error) {
	f.upsertCalls++
	created := 0
	for _, gameID := range gameIDs {
		f.shells[gameID] = true
		key := accountID + "/" + gameID
		if !f.links[key] {
			f.links[key] = true
			created++
		}
	}
	return created, nil
}

func (f *fakeStore) GameIDsMissingDetail(ctx context.Context, gameIDs []string) ([]string, error) {
	var missing []string
	for _, gameID := range gameIDs {
		if f.shells[gameID] && len(f.details[gameID]) == 0 {
			missing = append(missing, gameID)
		}
	}
	return missing, nil
}

func (f *fakeStore) UpdateMatchDetails(ctx context.Context, updates []store.MatchDetailUpdate) (int, []string, error) {
	updated := 0
	var missing []string
	for _, u := range updates {
		if !f.shells[u.GameID] {
			missing = append(missing, u.GameID)
			continue
		}
		f.details[u.GameID] = u.GameInfo
		updated++
	}
	return updated, missing, nil
}

func (f *fakeStore) TouchAccountActivity(ctx context.Context, accountID string) error {
	f.touchedCount++
	return nil
}

// fakeFetcher serves canned match id pages and detail payloads.
type fakeFetcher struct {
	ids       []string
	failIDs   map[string]bool
	fetchHits int
}

func (f *fakeFetcher) FetchMatchIDs(ctx context.Context, puuid string, start, count int) ([]string, error) {
	return f.ids, nil
}

func (f *fakeFetcher) FetchMatchByID(ctx context.Context, matchID string) (json.RawMessage, error) {
	f.fetchHits++
	if f.failIDs[matchID] {
		return nil, errors.New("fetch failed")
	}
	return json.RawMessage(fmt.Sprintf(`{"metadata":{"matchId":%q},"info":{"gameStartTimestamp":1700000000000}}`, matchID)), nil
}

func testPipeline(st *fakeStore, fetcher *fakeFetcher) (*Pipeline, *MemoryQueue) {
	queue := NewMemoryQueue()
	log := logging.NewLogger(io.Discard)
	return NewPipeline(st, fetcher, queue, nil, log, "NA1"), queue
}

// TestSyncAccountCreatesLinksAndDetailJobs verifies a first sync links every
// fetched match and enqueues detail batches of five.
func TestSyncAccountCreatesLinksAndDetailJobs(t *testing.T) {
	st := newFakeStore()
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("NA1_%d", i)
	}
	pipeline, queue := testPipeline(st, &fakeFetcher{ids: ids})

	summary, err := pipeline.SyncAccount(context.Background(), "acct-1", 0, 0)
	if err != nil {
		t.Fatalf("SyncAccount() error: %v", err)
	}

	if summary.Fetched != 12 || summary.NewLinks != 12 {
		t.Errorf("summary = %+v, want 12 fetched and 12 new links", summary)
	}
	if summary.DetailsEnqueued != 12 {
		t.Errorf("DetailsEnqueued = %d, want 12 (every missing id counts)", summary.DetailsEnqueued)
	}
	if queue.Len() != 3 {
		t.Errorf("queue length = %d, want 3 (batches of 5,5,2)", queue.Len())
	}
	if st.touchedCount != 1 {
		t.Errorf("activity touched %d times, want 1", st.touchedCount)
	}
}

// TestSyncAccountNormalizesBareIDs verifies ids without a platform prefix
// are stored under the normalized form.
func TestSyncAccountNormalizesBareIDs(t *testing.T) {
	st := newFakeStore()
	pipeline, _ := testPipeline(st, &fakeFetcher{ids: []string{"5296881234", "EUW1_9"}})

	if _, err := pipeline.SyncAccount(context.Background(), "acct-1", 0, 0); err != nil {
		t.Fatalf("SyncAccount() error: %v", err)
	}
	if !st.shells["NA1_5296881234"] {
		t.Error("bare id was not normalized with the default platform prefix")
	}
	if !st.shells["EUW1_9"] {
		t.Error("prefixed id should be stored as-is")
	}
}

// TestSyncAccountIsIdempotent verifies re-running a sync creates nothing new
// while the first run's detail jobs are still pending.
func TestSyncAccountIsIdempotent(t *testing.T) {
	st := newFakeStore()
	pipeline, queue := testPipeline(st, &fakeFetcher{ids: []string{"NA1_1", "NA1_2"}})
	ctx := context.Background()

	if _, err := pipeline.SyncAccount(ctx, "acct-1", 0, 0); err != nil {
		t.Fatalf("first SyncAccount() error: %v", err)
	}

	summary, err := pipeline.SyncAccount(ctx, "acct-1", 0, 0)
	if err != nil {
		t.Fatalf("second SyncAccount() error: %v", err)
	}
	if summary.NewLinks != 0 {
		t.Errorf("second sync created %d links, want 0", summary.NewLinks)
	}
	if summary.DetailsEnqueued != 0 {
		t.Errorf("second sync enqueued %d ids, want 0 (dedup keys still held)", summary.DetailsEnqueued)
	}
	if queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1", queue.Len())
	}
}

// TestSyncAccountUnknownAccount verifies the not-found sentinel surfaces.
func TestSyncAccountUnknownAccount(t *testing.T) {
	pipeline, _ := testPipeline(newFakeStore(), &fakeFetcher{})

	_, err := pipeline.SyncAccount(context.Background(), "no-such-account", 0, 0)
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

// TestEnqueueSkipsMatchesWithDetails verifies only detail-less matches are
// batched.
func TestEnqueueSkipsMatchesWithDetails(t *testing.T) {
	st := newFakeStore()
	for i := 0; i < 6; i++ {
		gameID := fmt.Sprintf("NA1_%d", i)
		st.shells[gameID] = true
		if i < 4 {
			st.details[gameID] = json.RawMessage(`{"info":{}}`)
		}
	}
	pipeline, queue := testPipeline(st, &fakeFetcher{})

	enqueued, err := pipeline.EnqueueMissingDetailJobs(context.Background(),
		[]string{"NA1_0", "NA1_1", "NA1_2", "NA1_3", "NA1_4", "NA1_5"})
	if err != nil {
		t.Fatalf("EnqueueMissingDetailJobs() error: %v", err)
	}
	if enqueued != 2 {
		t.Errorf("enqueued = %d, want 2 (the two missing ids)", enqueued)
	}
	if queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1 (both ids fit one batch)", queue.Len())
	}
}

// TestEnqueueCountsIDsNotBatches verifies the enqueue count is game ids,
// and that a dedup-suppressed batch contributes none of its ids.
func TestEnqueueCountsIDsNotBatches(t *testing.T) {
	st := newFakeStore()
	gameIDs := make([]string, 7)
	for i := range gameIDs {
		gameIDs[i] = fmt.Sprintf("NA1_%d", i)
		st.shells[gameIDs[i]] = true
	}
	pipeline, queue := testPipeline(st, &fakeFetcher{})
	ctx := context.Background()

	enqueued, err := pipeline.EnqueueMissingDetailJobs(ctx, gameIDs)
	if err != nil {
		t.Fatalf("EnqueueMissingDetailJobs() error: %v", err)
	}
	if enqueued != 7 {
		t.Errorf("enqueued = %d, want 7 (ids, not the 2 batches)", enqueued)
	}
	if queue.Len() != 2 {
		t.Errorf("queue length = %d, want 2", queue.Len())
	}

	// Drain the second batch so only its dedup key is released, then
	// re-enqueue: the held first batch contributes zero ids.
	if _, err := queue.Dequeue(ctx, time.Second); err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	second, err := queue.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if err := queue.Done(ctx, second); err != nil {
		t.Fatalf("Done() error: %v", err)
	}

	enqueued, err = pipeline.EnqueueMissingDetailJobs(ctx, gameIDs)
	if err != nil {
		t.Fatalf("EnqueueMissingDetailJobs() error: %v", err)
	}
	if enqueued != 2 {
		t.Errorf("enqueued = %d, want 2 (only the released short batch)", enqueued)
	}
}

// TestFetchDetailsStoresPayloads verifies a clean batch persists every
// payload and reports ok.
func TestFetchDetailsStoresPayloads(t *testing.T) {
	st := newFakeStore()
	gameIDs := []string{"NA1_1", "NA1_2", "NA1_3"}
	for _, id := range gameIDs {
		st.shells[id] = true
	}
	pipeline, _ := testPipeline(st, &fakeFetcher{})

	result, err := pipeline.FetchDetails(context.Background(), gameIDs)
	if err != nil {
		t.Fatalf("FetchDetails() error: %v", err)
	}
	if result.Status != "ok" || result.Fetched != 3 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want ok/3/0", result)
	}
	for _, id := range gameIDs {
		if len(st.details[id]) == 0 {
			t.Errorf("detail for %s was not stored", id)
		}
	}
}

// TestFetchDetailsPartialBatch verifies per-id failures do not abort the
// batch: the successes commit and the result reports partial.
func TestFetchDetailsPartialBatch(t *testing.T) {
	st := newFakeStore()
	gameIDs := []string{"NA1_1", "NA1_2", "NA1_3", "NA1_4", "NA1_5"}
	for _, id := range gameIDs {
		st.shells[id] = true
	}
	fetcher := &fakeFetcher{failIDs: map[string]bool{"NA1_3": true}}
	pipeline, _ := testPipeline(st, fetcher)

	result, err := pipeline.FetchDetails(context.Background(), gameIDs)
	if err != nil {
		t.Fatalf("FetchDetails() error: %v", err)
	}
	if result.Status != "partial" {
		t.Errorf("status = %q, want partial", result.Status)
	}
	if result.Fetched != 4 || len(result.Errors) != 1 {
		t.Errorf("result = %+v, want 4 stored and 1 error", result)
	}
	if len(st.details["NA1_3"]) != 0 {
		t.Error("failed id must stay missing so a later sync re-enqueues it")
	}
}

// TestFetchDetailsStaleBatch verifies ids with no match record are reported
// rather than silently dropped.
func TestFetchDetailsStaleBatch(t *testing.T) {
	st := newFakeStore()
	st.shells["NA1_1"] = true
	pipeline, _ := testPipeline(st, &fakeFetcher{})

	result, err := pipeline.FetchDetails(context.Background(), []string{"NA1_1", "NA1_gone"})
	if err != nil {
		t.Fatalf("FetchDetails() error: %v", err)
	}
	if result.Fetched != 1 || len(result.Errors) != 1 || result.Status != "partial" {
		t.Errorf("result = %+v, want 1 stored, 1 error, partial", result)
	}
}

// TestBackfillDetailsInlineHonorsCap verifies the inline path fetches at
// most the cap and leaves the rest missing.
func TestBackfillDetailsInlineHonorsCap(t *testing.T) {
	st := newFakeStore()
	gameIDs := make([]string, 8)
	for i := range gameIDs {
		gameIDs[i] = fmt.Sprintf("NA1_%d", i)
		st.shells[gameIDs[i]] = true
	}
	fetcher := &fakeFetcher{}
	pipeline, _ := testPipeline(st, fetcher)

	result, err := pipeline.BackfillDetailsInline(context.Background(), gameIDs, 3)
	if err != nil {
		t.Fatalf("BackfillDetailsInline() error: %v", err)
	}
	if result.Fetched != 3 || fetcher.fetchHits != 3 {
		t.Errorf("fetched %d payloads with %d API calls, want 3 and 3", result.Fetched, fetcher.fetchHits)
	}
	if len(st.details) != 3 {
		t.Errorf("stored %d details, want 3", len(st.details))
	}

	// Nothing missing: zero work, ok status.
	for _, id := range gameIDs {
		st.details[id] = json.RawMessage(`{}`)
	}
	result, err = pipeline.BackfillDetailsInline(context.Background(), gameIDs, 3)
	if err != nil {
		t.Fatalf("BackfillDetailsInline() error: %v", err)
	}
	if result.Fetched != 0 || result.Status != "ok" {
		t.Errorf("result = %+v, want 0 fetched, ok", result)
	}
}

// TestWorkerDispatch verifies job routing by name.
func TestWorkerDispatch(t *testing.T) {
	st := newFakeStore()
	st.shells["NA1_1"] = true
	pipeline, queue := testPipeline(st, &fakeFetcher{ids: []string{"NA1_1"}})
	worker := NewWorker(queue, pipeline, logging.NewLogger(io.Discard))
	ctx := context.Background()

	syncJob, err := NewSyncAccountJob("acct-1")
	if err != nil {
		t.Fatalf("NewSyncAccountJob() error: %v", err)
	}
	if err := worker.dispatch(ctx, &syncJob); err != nil {
		t.Errorf("dispatch(sync) error: %v", err)
	}
	if st.upsertCalls != 1 {
		t.Errorf("upsert called %d times, want 1", st.upsertCalls)
	}

	detailJob, err := NewFetchDetailsJob([]string{"NA1_1"})
	if err != nil {
		t.Fatalf("NewFetchDetailsJob() error: %v", err)
	}
	if err := worker.dispatch(ctx, &detailJob); err != nil {
		t.Errorf("dispatch(details) error: %v", err)
	}
	if len(st.details["NA1_1"]) == 0 {
		t.Error("detail job did not store the payload")
	}

	if err := worker.dispatch(ctx, &Job{Name: "bogus"}); err == nil {
		t.Error("dispatch of unknown job name should fail")
	}
}

// TestSchedulerSweepDedupes verifies one sweep enqueues per account and an
// immediate second sweep is suppressed by dedup keys.
func TestSchedulerSweepDedupes(t *testing.T) {
	accounts := []models.RiotAccount{
		{ID: "acct-1", LastActiveAt: time.Now()},
		{ID: "acct-2", LastActiveAt: time.Now()},
	}
	queue := NewMemoryQueue()
	scheduler := NewScheduler(listerFunc(func(ctx context.Context, window time.Duration) ([]models.RiotAccount, error) {
		return accounts, nil
	}), queue, logging.NewLogger(io.Discard))
	ctx := context.Background()

	enqueued, err := scheduler.SyncAllAccounts(ctx)
	if err != nil {
		t.Fatalf("SyncAllAccounts() error: %v", err)
	}
	if enqueued != 2 {
		t.Errorf("enqueued = %d, want 2", enqueued)
	}

	enqueued, err = scheduler.SyncAllAccounts(ctx)
	if err != nil {
		t.Fatalf("second SyncAllAccounts() error: %v", err)
	}
	if enqueued != 0 {
		t.Errorf("second sweep enqueued = %d, want 0", enqueued)
	}
	if queue.Len() != 2 {
		t.Errorf("queue length = %d, want 2", queue.Len())
	}
}

type listerFunc func(ctx context.Context, window time.Duration) ([]models.RiotAccount, error)

func (f listerFunc) ListActiveAccounts(ctx context.Context, window time.Duration) ([]models.RiotAccount, error) {
	return f(ctx, window)
}
