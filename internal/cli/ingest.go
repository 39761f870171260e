package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JairoE/league-match-analyzer/internal/jobs"
	"github.com/JairoE/league-match-analyzer/internal/riot"
)

// newWorkerCmd runs the job worker pool until interrupted.
func newWorkerCmd() *cobra.Command {
	var (
		workerCount   int
		withScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the ingestion job workers",
		Long: `Consume the Redis job queue with a pool of workers, executing
account syncs and match detail fetches until interrupted. With
--with-scheduler the periodic sync sweep runs in the same process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			worker := jobs.NewWorker(a.queue, a.pipeline, a.log)
			worker.Count = a.cfg.Ingest.WorkerCount
			if workerCount > 0 {
				worker.Count = workerCount
			}
			worker.JobTimeout = a.cfg.JobTimeout()

			if withScheduler {
				scheduler := jobs.NewScheduler(a.store, a.queue, a.log)
				scheduler.Interval = a.cfg.ScheduleInterval()
				scheduler.ActiveWindow = a.cfg.ActiveWindow()
				go scheduler.Run(ctx)
			}

			worker.Run(ctx)
			return nil
		},
	}

	cmd.Flags().IntVar(&workerCount, "workers", 0, "Worker pool size (0 = use config)")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the periodic sync scheduler")
	return cmd
}

// newScheduleCmd runs the periodic sync scheduler.
func newScheduleCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Enqueue sync jobs for recently active accounts",
		Long: `Sweep the tracked accounts and enqueue a sync job for every account
active within the configured window. Runs on an interval unless --once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler := jobs.NewScheduler(a.store, a.queue, a.log)
			scheduler.Interval = a.cfg.ScheduleInterval()
			scheduler.ActiveWindow = a.cfg.ActiveWindow()

			if once {
				enqueued, err := scheduler.SyncAllAccounts(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Enqueued %d sync jobs\n", enqueued)
				return nil
			}

			scheduler.Run(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run one sweep and exit")
	return cmd
}

// newSyncCmd runs one account sync inline, bypassing the queue for the
// sync itself (detail jobs still go through the queue unless
// --inline-details).
func newSyncCmd() *cobra.Command {
	var (
		start         int
		count         int
		inlineDetails bool
	)

	cmd := &cobra.Command{
		Use:   "sync <riot-account-id>",
		Short: "Sync one account's match history now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.pipeline.SyncAccount(ctx, args[0], start, count)
			if err != nil {
				return err
			}
			fmt.Printf("Fetched %d match ids: %d new links, %d detail fetches enqueued\n",
				summary.Fetched, summary.NewLinks, summary.DetailsEnqueued)

			if inlineDetails {
				result, err := a.pipeline.BackfillDetailsInline(ctx, summary.GameIDs, jobs.InlineBackfillMax)
				if err != nil {
					return err
				}
				fmt.Printf("Backfilled %d detail payloads inline (%s)\n", result.Fetched, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "Match list page offset")
	cmd.Flags().IntVar(&count, "count", 0, "Match ids to fetch (0 = default page)")
	cmd.Flags().BoolVar(&inlineDetails, "inline-details", false,
		fmt.Sprintf("Fetch up to %d missing detail payloads now instead of enqueueing", jobs.InlineBackfillMax))
	return cmd
}

// newTrackCmd resolves a Riot ID through the public API and registers it
// as a tracked account.
func newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <gameName#tagLine>",
		Short: "Register a Riot account for ingestion",
		Long: `Resolve a Riot ID (gameName#tagLine) to its PUUID, snapshot the
summoner profile and rank, and create or refresh the tracked account.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameName, tagLine, ok := strings.Cut(args[0], "#")
			if !ok || gameName == "" || tagLine == "" {
				return fmt.Errorf("riot id must be gameName#tagLine, got %q", args[0])
			}

			ctx := GetContext()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.riot.FetchAccountByRiotID(ctx, gameName, tagLine)
			if err != nil {
				return err
			}

			summoner, err := a.riot.FetchSummonerByPUUID(ctx, account.PUUID)
			if err != nil {
				return err
			}
			snapshot, err := json.Marshal(summoner)
			if err != nil {
				return fmt.Errorf("encode summoner snapshot: %w", err)
			}

			riotID := account.GameName + "#" + account.TagLine
			accountID, err := a.store.UpsertAccount(ctx, riotID, account.PUUID, snapshot)
			if err != nil {
				return err
			}
			fmt.Printf("Tracking %s (account id %s)\n", riotID, accountID)

			entries, err := a.riot.FetchRankByPUUID(ctx, account.PUUID)
			if err != nil {
				a.log.Warn().Err(err).Msg("rank lookup failed")
				return nil
			}
			if len(entries) == 0 {
				fmt.Println("No ranked entries")
				return nil
			}
			for _, entry := range entries {
				fmt.Printf("  %s: %s %s, %d LP (%dW/%dL)\n",
					entry.QueueType, entry.Tier, entry.Rank,
					entry.LeaguePoints, entry.Wins, entry.Losses)
			}
			return nil
		},
	}
}

// newDetailsCmd fetches detail payloads for explicit match ids inline.
func newDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <game-id>...",
		Short: "Fetch and store detail payloads for the given match ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			gameIDs := make([]string, 0, len(args))
			for _, id := range args {
				normalized, _ := riot.NormalizeMatchID(id, a.cfg.Riot.DefaultPlatform)
				gameIDs = append(gameIDs, normalized)
			}

			result, err := a.pipeline.FetchDetails(ctx, gameIDs)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %d payloads (%s)\n", result.Fetched, result.Status)
			for _, fetchErr := range result.Errors {
				fmt.Printf("  %v\n", fetchErr)
			}
			return nil
		},
	}
}

// newStatusCmd prints queue depth and job counters.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and job counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			queued, processing, err := a.queue.Depth(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Queue: %d queued, %d in flight\n", queued, processing)

			counters, err := a.metrics.Snapshot(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(counters))
			for name := range counters {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-24s %s\n", name, counters[name])
			}
			return nil
		},
	}
}

// newMigrateCmd creates the database schema.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			// newApp already ran EnsureSchema; reaching here means it worked.
			fmt.Println("Schema is up to date")
			return nil
		},
	}
}
