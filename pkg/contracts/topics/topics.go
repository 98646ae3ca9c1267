package topics

const (
	// Rodadas
	RoundsReleased = "matchday_rounds_released"

	// Liquidação
	MatchesSettled = "matchday_matches_settled"

	// Falhas do ledger (observabilidade; nada é reprocessado a partir daqui)
	LedgerRejections = "matchday_ledger_rejections"
)
