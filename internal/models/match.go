// Package models defines the persisted record types shared by the store
// and the ingestion pipeline.
package models

import (
	"encoding/json"
	"time"
)

// MatchRecord is one persisted match. A record is created as a shell (no
// GameInfo) the first time its game id is seen in a match list, and filled
// exactly once by a detail-fetch job. GameInfo is either absent or a
// complete Riot payload - never partial.
type MatchRecord struct {
	// ID is the internal primary key (UUID).
	ID string

	// GameID is Riot's natural key, e.g. "NA1_5296881234". Unique.
	GameID string

	// GameStartTimestamp is derived from the detail payload
	// (info.gameStartTimestamp, epoch millis). Nil until details arrive.
	GameStartTimestamp *int64

	// GameInfo is the opaque detail payload. Nil (or JSON null, treated
	// the same) while the detail fetch is outstanding.
	GameInfo json.RawMessage
}

// HasDetail reports whether the detail payload is present. A JSON null
// counts as missing - some old rows carry it instead of SQL NULL.
func (m *MatchRecord) HasDetail() bool {
	return len(m.GameInfo) > 0 && string(m.GameInfo) != "null"
}

// AccountMatchLink joins a riot account to a match. The pair is unique;
// re-observing it is a no-op.
type AccountMatchLink struct {
	RiotAccountID string
	MatchID       string
}

// RiotAccount is a tracked account. CRUD beyond what ingestion needs lives
// outside this core; the pipeline only resolves accounts and the scheduler
// only enumerates recently-active ones.
type RiotAccount struct {
	ID           string
	RiotID       string // gameName#tagLine
	PUUID        string
	Summoner     json.RawMessage
	LastActiveAt time.Time
}
