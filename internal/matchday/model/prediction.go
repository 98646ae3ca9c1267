package model

import "github.com/shopspring/decimal"

// Amount é um decimal de ponto fixo: Value * 10^-Scale
type Amount struct {
	Value int64 `json:"value"`
	Scale int32 `json:"scale"`
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.Value, -a.Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(a.Scale)
}

// AmountFromDecimal trunca d na escala informada
func AmountFromDecimal(d decimal.Decimal, scale int32) Amount {
	return Amount{Value: d.Truncate(scale).Shift(scale).IntPart(), Scale: scale}
}

// Prediction vem do ledger; OddsID é o identificador travado no momento da aposta
type Prediction struct {
	Bettor   string `json:"bettor"`
	MatchID  string `json:"match_id"`
	Category string `json:"category"`
	Stake    Amount `json:"stake"`
	OddsID   string `json:"odds_id"`
}

// Reward é o prêmio de uma previsão vencedora
type Reward struct {
	MatchID string `json:"match_id"`
	Bettor  string `json:"bettor"`
	OddsID  string `json:"odds_id"`
	Stake   Amount `json:"stake"`
	Payout  Amount `json:"payout"`
}
