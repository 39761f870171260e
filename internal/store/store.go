// Package store persists match records, account-match links, and the
// riot accounts the ingestion pipeline resolves against Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JairoE/league-match-analyzer/internal/logging"
	"github.com/JairoE/league-match-analyzer/internal/models"
)

// ErrAccountNotFound indicates the requested riot account does not exist.
var ErrAccountNotFound = errors.New("riot account not found")

// Store wraps a pgx connection pool. All multi-row ingestion writes run
// inside one transaction with a single commit, so a failed pass never
// leaves half the batch persisted.
type Store struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewStore creates a store over an existing pool.
func NewStore(pool *pgxpool.Pool, log *logging.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// OpenPool connects a pgx pool for the given DSN.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// AccountByID resolves a riot account by its internal UUID.
func (s *Store) AccountByID(ctx context.Context, accountID string) (*models.RiotAccount, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, riot_id, puuid, summoner, last_active_at
		 FROM riot_account WHERE id = $1::uuid`, accountID)

	var account models.RiotAccount
	err := row.Scan(&account.ID, &account.RiotID, &account.PUUID, &account.Summoner, &account.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account by id: %w", err)
	}
	return &account, nil
}

// UpsertAccount creates or refreshes a tracked account keyed by riot id
// and returns its internal id. Re-tracking an existing account updates
// the puuid and summoner snapshot and bumps activity.
func (s *Store) UpsertAccount(ctx context.Context, riotID, puuid string, summoner json.RawMessage) (string, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO riot_account (riot_id, puuid, summoner)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (riot_id) DO UPDATE
		 SET puuid = EXCLUDED.puuid,
		     summoner = EXCLUDED.summoner,
		     last_active_at = now()
		 RETURNING id::text`,
		riotID, puuid, summoner)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("upsert account: %w", err)
	}
	return id, nil
}

// ListActiveAccounts returns accounts active within the given window,
// most recently active first. The scheduler enqueues one sync job per
// returned account.
func (s *Store) ListActiveAccounts(ctx context.Context, window time.Duration) ([]models.RiotAccount, error) {
	cutoff := time.Now().Add(-window)
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, riot_id, puuid, summoner, last_active_at
		 FROM riot_account
		 WHERE last_active_at >= $1
		 ORDER BY last_active_at DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.RiotAccount
	for rows.Next() {
		var account models.RiotAccount
		if err := rows.Scan(&account.ID, &account.RiotID, &account.PUUID, &account.Summoner, &account.LastActiveAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// MatchesByGameIDs returns the existing records for the given game ids,
// keyed by game id.
func (s *Store) MatchesByGameIDs(ctx context.Context, gameIDs []string) (map[string]models.MatchRecord, error) {
	matches := make(map[string]models.MatchRecord, len(gameIDs))
	if len(gameIDs) == 0 {
		return matches, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, game_id, game_start_timestamp, game_info
		 FROM match WHERE game_id = ANY($1)`, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("matches by game ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.MatchRecord
		if err := rows.Scan(&m.ID, &m.GameID, &m.GameStartTimestamp, &m.GameInfo); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches[m.GameID] = m
	}
	return matches, rows.Err()
}

// UpsertMatchesForAccount creates shell records for unseen game ids and
// links them to the account, all in one transaction.
//
// Shell inserts use ON CONFLICT (game_id) DO NOTHING so two processes
// observing the same match concurrently converge on one row; the re-read
// after the insert flush resolves whichever row won. Link inserts
// deduplicate the same way against the unique pair constraint.
//
// Returns the number of links actually created. Re-running with the same
// ids returns zero.
func (s *Store) UpsertMatchesForAccount(ctx context.Context, accountID string, gameIDs []string) (int, error) {
	if len(gameIDs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	matchIDs, err := s.ensureMatchShells(ctx, tx, gameIDs)
	if err != nil {
		return 0, err
	}

	created, err := s.ensureLinks(ctx, tx, accountID, matchIDs)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert tx: %w", err)
	}

	s.log.Info().
		Str("riot_account_id", accountID).
		Int("match_count", len(gameIDs)).
		Int("linked", created).
		Msg("match upsert complete")
	return created, nil
}

// ensureMatchShells inserts missing shells and returns the internal match
// id for every requested game id. One re-read pass resolves rows created
// concurrently by another process; a second miss is a real error.
func (s *Store) ensureMatchShells(ctx context.Context, tx pgx.Tx, gameIDs []string) ([]string, error) {
	existing, err := matchIDsByGameID(ctx, tx, gameIDs)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	pending := 0
	for _, gameID := range gameIDs {
		if _, ok := existing[gameID]; ok {
			continue
		}
		batch.Queue(`INSERT INTO match (game_id) VALUES ($1) ON CONFLICT (game_id) DO NOTHING`, gameID)
		pending++
	}
	if pending > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("insert match shells: %w", err)
		}
		// Re-read to pick up both our inserts and any concurrent winners.
		existing, err = matchIDsByGameID(ctx, tx, gameIDs)
		if err != nil {
			return nil, err
		}
	}

	matchIDs := make([]string, 0, len(gameIDs))
	for _, gameID := range gameIDs {
		matchID, ok := existing[gameID]
		if !ok {
			return nil, fmt.Errorf("match shell missing after insert: %s", gameID)
		}
		matchIDs = append(matchIDs, matchID)
	}
	return matchIDs, nil
}

func matchIDsByGameID(ctx context.Context, tx pgx.Tx, gameIDs []string) (map[string]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT game_id, id::text FROM match WHERE game_id = ANY($1)`, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("select match ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]string, len(gameIDs))
	for rows.Next() {
		var gameID, matchID string
		if err := rows.Scan(&gameID, &matchID); err != nil {
			return nil, fmt.Errorf("scan match id: %w", err)
		}
		ids[gameID] = matchID
	}
	return ids, rows.Err()
}

// ensureLinks creates the missing account-match links and returns how many
// were new.
func (s *Store) ensureLinks(ctx context.Context, tx pgx.Tx, accountID string, matchIDs []string) (int, error) {
	rows, err := tx.Query(ctx,
		`SELECT match_id::text FROM riot_account_match
		 WHERE riot_account_id = $1::uuid AND match_id = ANY($2::uuid[])`,
		accountID, matchIDs)
	if err != nil {
		return 0, fmt.Errorf("select links: %w", err)
	}
	linked := make(map[string]bool, len(matchIDs))
	for rows.Next() {
		var matchID string
		if err := rows.Scan(&matchID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan link: %w", err)
		}
		linked[matchID] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	pending := 0
	for _, matchID := range matchIDs {
		if linked[matchID] {
			continue
		}
		batch.Queue(
			`INSERT INTO riot_account_match (riot_account_id, match_id)
			 VALUES ($1::uuid, $2::uuid)
			 ON CONFLICT ON CONSTRAINT uq_riot_account_match DO NOTHING`,
			accountID, matchID)
		pending++
	}
	if pending == 0 {
		return 0, nil
	}

	br := tx.SendBatch(ctx, batch)
	created := 0
	for i := 0; i < pending; i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert link: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close link batch: %w", err)
	}
	return created, nil
}

// GameIDsMissingDetail returns the subset of gameIDs whose match record
// has no detail payload. SQL NULL and a stored JSON null both count as
// missing. The common all-present case returns an empty slice cheaply.
func (s *Store) GameIDsMissingDetail(ctx context.Context, gameIDs []string) ([]string, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT game_id FROM match
		 WHERE game_id = ANY($1)
		   AND (game_info IS NULL OR game_info = 'null'::jsonb)`, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("missing details: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var gameID string
		if err := rows.Scan(&gameID); err != nil {
			return nil, fmt.Errorf("scan missing detail: %w", err)
		}
		missing = append(missing, gameID)
	}
	return missing, rows.Err()
}

// MatchDetailUpdate is one fetched detail payload to persist.
type MatchDetailUpdate struct {
	GameID             string
	GameInfo           json.RawMessage
	GameStartTimestamp *int64
}

// UpdateMatchDetails persists a batch of detail payloads under a single
// commit. Returns the game ids that had no match record (stale batches
// can reference rows that were never created here).
func (s *Store) UpdateMatchDetails(ctx context.Context, updates []MatchDetailUpdate) (updated int, missing []string, err error) {
	if len(updates) == 0 {
		return 0, nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("begin detail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(
			`UPDATE match
			 SET game_info = $2, game_start_timestamp = $3
			 WHERE game_id = $1`,
			u.GameID, u.GameInfo, u.GameStartTimestamp)
	}

	br := tx.SendBatch(ctx, batch)
	for _, u := range updates {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, nil, fmt.Errorf("update detail %s: %w", u.GameID, err)
		}
		if tag.RowsAffected() == 0 {
			missing = append(missing, u.GameID)
			continue
		}
		updated++
	}
	if err := br.Close(); err != nil {
		return 0, nil, fmt.Errorf("close detail batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit detail tx: %w", err)
	}
	return updated, missing, nil
}

// TouchAccountActivity bumps last_active_at after a successful sync so
// the scheduler's active-account window reflects ingestion activity.
func (s *Store) TouchAccountActivity(ctx context.Context, accountID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE riot_account SET last_active_at = now() WHERE id = $1::uuid`, accountID)
	if err != nil {
		return fmt.Errorf("touch account activity: %w", err)
	}
	return nil
}
