package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for tests and single-shot CLI runs
// that have no Redis available. Dedup keys never expire; the queue's
// lifetime is one process.
type MemoryQueue struct {
	mu    sync.Mutex
	items []Job
	dedup map[string]bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{dedup: make(map[string]bool)}
}

// Enqueue appends the job unless its dedup key is already reserved.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.DedupKey != "" {
		if q.dedup[job.DedupKey] {
			return false, nil
		}
		q.dedup[job.DedupKey] = true
	}
	q.items = append(q.items, job)
	return true, nil
}

// dequeuePollInterval is how often an empty Dequeue rechecks for work.
const dequeuePollInterval = 10 * time.Millisecond

// Dequeue pops the oldest job, polling up to wait for one to arrive so a
// worker looping over an empty queue parks instead of spinning.
func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	deadline := time.Now().Add(wait)
	for {
		if job := q.pop(); job != nil {
			return job, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNoJob
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dequeuePollInterval):
		}
	}
}

func (q *MemoryQueue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	job := q.items[0]
	q.items = q.items[1:]
	return &job
}

// Done releases the job's dedup key.
func (q *MemoryQueue) Done(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.DedupKey != "" {
		delete(q.dedup, job.DedupKey)
	}
	return nil
}

// Len reports the number of queued jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
