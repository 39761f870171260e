package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/JairoE/league-match-analyzer/internal/logging"
	"github.com/JairoE/league-match-analyzer/internal/models"
)

// AccountLister is the store surface the scheduler needs.
type AccountLister interface {
	ListActiveAccounts(ctx context.Context, window time.Duration) ([]models.RiotAccount, error)
}

// Scheduler periodically enqueues a sync job for every recently active
// account. Per-account dedup keys make overlapping scheduler instances
// harmless.
type Scheduler struct {
	store AccountLister
	queue Queue
	log   *logging.Logger

	// Interval between sweeps. Zero means DefaultScheduleInterval.
	Interval time.Duration

	// ActiveWindow is how far back account activity may be. Zero means
	// DefaultActiveWindow.
	ActiveWindow time.Duration
}

// Scheduler defaults.
const (
	DefaultScheduleInterval = 30 * time.Minute
	DefaultActiveWindow     = 7 * 24 * time.Hour
)

// NewScheduler creates a scheduler with default tuning.
func NewScheduler(store AccountLister, queue Queue, log *logging.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		queue:        queue,
		log:          log,
		Interval:     DefaultScheduleInterval,
		ActiveWindow: DefaultActiveWindow,
	}
}

// SyncAllAccounts runs one sweep: enqueue a sync job for every account
// active inside the window. Per-account enqueue failures are logged and
// skipped so one bad account cannot block the rest of the sweep.
func (s *Scheduler) SyncAllAccounts(ctx context.Context) (enqueued int, err error) {
	window := s.ActiveWindow
	if window <= 0 {
		window = DefaultActiveWindow
	}

	accounts, err := s.store.ListActiveAccounts(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	for _, account := range accounts {
		job, err := NewSyncAccountJob(account.ID)
		if err != nil {
			s.log.Error().Err(err).Str("riot_account_id", account.ID).Msg("sync job build failed")
			continue
		}
		pushed, err := s.queue.Enqueue(ctx, job)
		if err != nil {
			s.log.Error().Err(err).Str("riot_account_id", account.ID).Msg("sync enqueue failed")
			continue
		}
		if pushed {
			enqueued++
		}
	}

	s.log.Info().
		Int("accounts", len(accounts)).
		Int("enqueued", enqueued).
		Msg("sync sweep complete")
	return enqueued, nil
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultScheduleInterval
	}

	if _, err := s.SyncAllAccounts(ctx); err != nil {
		s.log.Error().Err(err).Msg("sync sweep failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.SyncAllAccounts(ctx); err != nil {
				s.log.Error().Err(err).Msg("sync sweep failed")
			}
		}
	}
}
