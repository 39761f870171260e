package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JairoE/league-match-analyzer/internal/logging"
)

// dequeueWait bounds one blocking pop so workers notice context
// cancellation promptly.
const dequeueWait = 5 * time.Second

// Worker consumes the queue with a pool of goroutines and dispatches each
// job to the pipeline. Failed jobs are acknowledged and dropped; the
// pipeline's idempotency plus the scheduler's periodic re-sync means the
// work is re-derived rather than re-driven by the queue.
type Worker struct {
	queue    Queue
	pipeline *Pipeline
	log      *logging.Logger

	// Count is the pool size. Zero means one worker.
	Count int

	// JobTimeout bounds one job execution. Zero means no limit.
	JobTimeout time.Duration
}

// NewWorker creates a worker pool over the queue.
func NewWorker(queue Queue, pipeline *Pipeline, log *logging.Logger) *Worker {
	return &Worker{queue: queue, pipeline: pipeline, log: log, Count: 1}
}

// Run consumes jobs until ctx is cancelled. It blocks; cancel the context
// to stop, and Run returns once every in-flight job has finished.
func (w *Worker) Run(ctx context.Context) {
	count := w.Count
	if count < 1 {
		count = 1
	}
	w.log.Info().Int("workers", count).Msg("worker pool starting")

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}
	wg.Wait()
	w.log.Info().Msg("worker pool stopped")
}

func (w *Worker) consume(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.Dequeue(ctx, dequeueWait)
		if errors.Is(err, ErrNoJob) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Int("worker", id).Msg("dequeue failed")
			time.Sleep(time.Second)
			continue
		}

		w.handle(ctx, id, job)
	}
}

// handle runs one job under the per-job timeout and always acknowledges
// it afterwards, success or not.
func (w *Worker) handle(ctx context.Context, id int, job *Job) {
	jobCtx, cancel := jobTimeoutContext(ctx, w.JobTimeout)
	defer cancel()

	start := time.Now()
	err := w.dispatch(jobCtx, job)
	elapsed := time.Since(start)

	if err != nil {
		w.log.Error().Err(err).
			Int("worker", id).
			Str("job", job.String()).
			Dur("elapsed", elapsed).
			Msg("job failed")
	} else {
		w.log.Debug().
			Int("worker", id).
			Str("job", job.String()).
			Dur("elapsed", elapsed).
			Msg("job complete")
	}

	// Ack with a fresh context so shutdown cannot strand the dedup key.
	ackCtx, ackCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ackCancel()
	if err := w.queue.Done(ackCtx, job); err != nil {
		w.log.Warn().Err(err).Str("job", job.String()).Msg("job ack failed")
	}
}

func (w *Worker) dispatch(ctx context.Context, job *Job) error {
	switch job.Name {
	case JobSyncAccountMatches:
		var args SyncAccountArgs
		if err := json.Unmarshal(job.Args, &args); err != nil {
			return fmt.Errorf("decode sync args: %w", err)
		}
		_, err := w.pipeline.SyncAccount(ctx, args.RiotAccountID, 0, 0)
		return err

	case JobFetchMatchDetails:
		var args FetchDetailsArgs
		if err := json.Unmarshal(job.Args, &args); err != nil {
			return fmt.Errorf("decode detail args: %w", err)
		}
		_, err := w.pipeline.FetchDetails(ctx, args.GameIDs)
		return err

	default:
		return fmt.Errorf("unknown job name %q", job.Name)
	}
}
