package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JairoE/league-match-analyzer/internal/config"
	"github.com/JairoE/league-match-analyzer/internal/jobs"
	"github.com/JairoE/league-match-analyzer/internal/logging"
	"github.com/JairoE/league-match-analyzer/internal/metrics"
	"github.com/JairoE/league-match-analyzer/internal/ratelimit"
	"github.com/JairoE/league-match-analyzer/internal/riot"
	"github.com/JairoE/league-match-analyzer/internal/store"
)

// app holds the wired service dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	rdb      *redis.Client
	pool     *pgxpool.Pool
	store    *store.Store
	riot     *riot.Client
	queue    *jobs.RedisQueue
	metrics  *metrics.Recorder
	pipeline *jobs.Pipeline
}

// newApp loads config and connects every backend. Callers must Close.
func newApp(ctx context.Context) (*app, error) {
	log := GetLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	pool, err := store.OpenPool(ctx, cfg.PostgresDSN)
	if err != nil {
		rdb.Close()
		return nil, err
	}

	st := store.NewStore(pool, log)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		rdb.Close()
		return nil, err
	}

	limiter := ratelimit.NewLimiter(
		ratelimit.DefaultConfig(),
		ratelimit.NewRedisWindowStore(rdb),
		log,
	)

	client := riot.NewClient(riot.Options{
		APIKey:          cfg.Riot.APIKey,
		RegionBaseURL:   cfg.Riot.RegionBaseURL,
		PlatformBaseURL: cfg.Riot.PlatformBaseURL,
	}, limiter, log)

	queue := jobs.NewRedisQueue(rdb, log)
	recorder := metrics.NewRecorder(rdb, log)
	pipeline := jobs.NewPipeline(st, client, queue, recorder, log, cfg.Riot.DefaultPlatform)

	return &app{
		cfg:      cfg,
		log:      log,
		rdb:      rdb,
		pool:     pool,
		store:    st,
		riot:     client,
		queue:    queue,
		metrics:  recorder,
		pipeline: pipeline,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
	if err := a.rdb.Close(); err != nil {
		a.log.Warn().Err(err).Msg("redis close failed")
	}
}
