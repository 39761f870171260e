package riot

import "encoding/json"

// Account is the account-v1 payload for a Riot ID.
type Account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// Summoner is the summoner-v4 profile payload.
type Summoner struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	PUUID         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	SummonerLevel int64  `json:"summonerLevel"`
}

// RankEntry is one league-v4 ranked entry. An account with no ranked
// record has zero entries; that is a valid outcome, not an error.
type RankEntry struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// MatchStartTimestamp extracts info.gameStartTimestamp from a raw match
// detail payload. ok is false when the field is absent or the payload does
// not parse; the detail payload itself stays opaque either way.
func MatchStartTimestamp(payload json.RawMessage) (int64, bool) {
	var envelope struct {
		Info struct {
			GameStartTimestamp *int64 `json:"gameStartTimestamp"`
		} `json:"info"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return 0, false
	}
	if envelope.Info.GameStartTimestamp == nil {
		return 0, false
	}
	return *envelope.Info.GameStartTimestamp, true
}
