package store

import (
	"context"
	"fmt"
)

// Schema DDL. EnsureSchema is idempotent so workers and the CLI can both
// call it at startup without coordination. gen_random_uuid() needs
// pgcrypto on Postgres < 13; 13+ ships it built in.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS riot_account (
		id             uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		riot_id        text UNIQUE NOT NULL,
		puuid          text UNIQUE NOT NULL,
		summoner       jsonb,
		last_active_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS match (
		id                   uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		game_id              text UNIQUE NOT NULL,
		game_start_timestamp bigint,
		game_info            jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS riot_account_match (
		id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		riot_account_id uuid NOT NULL REFERENCES riot_account(id) ON DELETE CASCADE,
		match_id        uuid NOT NULL REFERENCES match(id) ON DELETE CASCADE,
		CONSTRAINT uq_riot_account_match UNIQUE (riot_account_id, match_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_riot_account_match_account
		ON riot_account_match (riot_account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_riot_account_last_active
		ON riot_account (last_active_at)`,
}

// EnsureSchema creates the ingestion tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
