package settlement

import (
	"sort"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

// Outcome retorna a categoria vencedora do placar
func Outcome(s model.Score) string {
	switch {
	case s.Home > s.Away:
		return "home"
	case s.Away > s.Home:
		return "away"
	default:
		return "draw"
	}
}

// Wins diz se a categoria vence com o placar; categorias desconhecidas nunca vencem
func Wins(category string, s model.Score) bool {
	switch category {
	case "home", "away", "draw":
		return category == Outcome(s)
	default:
		return false
	}
}

// Item é uma partida concluída com placar resolvido e previsões lidas do ledger
type Item struct {
	Match       model.Match
	Score       model.Score
	Predictions []model.Prediction
}

// Settle calcula os prêmios de uma partida. É função pura: mesma entrada,
// mesma saída, na mesma ordem.
//
// Previsões cujo OddsID não existe na tabela, que apontam para outra partida
// ou cuja categoria declarada diverge da categoria do id são anuladas.
func Settle(m model.Match, score model.Score, preds []model.Prediction) []model.Reward {
	idx := m.Payload.Odds.Index()
	var out []model.Reward

	for _, p := range preds {
		if p.MatchID != m.ID {
			continue
		}
		ref, ok := idx[p.OddsID]
		if !ok {
			continue
		}
		if p.Category != "" && p.Category != ref.Category && p.Category != ref.Path {
			continue
		}
		if !Wins(ref.Category, score) {
			continue
		}
		payout := model.AmountFromDecimal(p.Stake.Decimal().Mul(ref.Odd), p.Stake.Scale)
		if payout.Value <= 0 {
			continue
		}
		out = append(out, model.Reward{
			MatchID: m.ID,
			Bettor:  p.Bettor,
			OddsID:  p.OddsID,
			Stake:   p.Stake,
			Payout:  payout,
		})
	}

	sortRewards(out)
	return out
}

// SettleBatch aplica Settle a várias partidas e devolve um único lote ordenado
func SettleBatch(items []Item) []model.Reward {
	var out []model.Reward
	for _, it := range items {
		out = append(out, Settle(it.Match, it.Score, it.Predictions)...)
	}
	sortRewards(out)
	return out
}

func sortRewards(rs []model.Reward) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.MatchID != b.MatchID {
			return a.MatchID < b.MatchID
		}
		if a.Bettor != b.Bettor {
			return a.Bettor < b.Bettor
		}
		if a.OddsID != b.OddsID {
			return a.OddsID < b.OddsID
		}
		return a.Stake.Decimal().LessThan(b.Stake.Decimal())
	})
}
