package events

import "time"

// Evento emitido após o ledger aceitar placares e prêmios de um lote
type MatchesSettled struct {
	Scores  []SettledScore `json:"scores"`
	Rewards []RewardPaid   `json:"rewards"`
	Purged  int64          `json:"purged"`
	Receipt string         `json:"receipt"`
	Ts      time.Time      `json:"ts"`
}

type SettledScore struct {
	MatchID string `json:"match_id"`
	Home    int    `json:"home"`
	Away    int    `json:"away"`
}

type RewardPaid struct {
	MatchID string `json:"match_id"`
	Bettor  string `json:"bettor"`
	OddsID  string `json:"odds_id"`
	Payout  string `json:"payout"` // decimal em string, ex: "18.00"
}
