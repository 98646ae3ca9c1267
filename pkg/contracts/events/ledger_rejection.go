package events

import "time"

// LedgerRejection registra uma chamada ao ledger que não foi confirmada.
// O estado local não mudou; o mesmo lote é refeito no próximo tick.
type LedgerRejection struct {
	Operation string    `json:"operation"` // "register_matches" | "register_scores"
	Kind      string    `json:"kind"`      // "ledger_rejection" | "transient_io"
	Reason    string    `json:"reason"`
	MatchIDs  []string  `json:"match_ids"`
	Ts        time.Time `json:"ts"`
}
