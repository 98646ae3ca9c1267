package events

import "time"

// Evento publicado no tópico "matchday_rounds_released" depois que o ledger
// confirmou o registro das novas rodadas e o banco fez commit.
type RoundsReleased struct {
	Rounds   []int64       `json:"rounds"`
	Matches  []MatchHeader `json:"matches"`
	Receipt  string        `json:"receipt"`
	Frontier int64         `json:"frontier"`
	Current  int64         `json:"current"`
	Ts       time.Time     `json:"ts"`
}

// MatchHeader é a visão pública mínima de uma partida (sem placar nem eventos)
type MatchHeader struct {
	MatchID   string `json:"match_id"`
	Round     int64  `json:"round"`
	KickoffMs int64  `json:"kickoff_ms"`
	League    string `json:"league"`
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
}
