package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

// ErrUnavailable cobre rede, 5xx e respostas ilegíveis do gateway do ledger
var ErrUnavailable = errors.New("ledger unavailable")

// RejectionError é uma falha estruturada devolvida pelo ledger ({success:false})
type RejectionError struct {
	Operation string
	Status    int
	Msg       string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ledger rejected %s (status %d): %s", e.Operation, e.Status, e.Msg)
}

// Receipt identifica a transação aceita pelo ledger
type Receipt struct {
	TxHash string `json:"tx_hash"`
}

// MatchRegistration é o que o ledger precisa saber de uma partida nova
type MatchRegistration struct {
	ID        string          `json:"id"`
	Round     int64           `json:"round"`
	Timestamp int64           `json:"timestamp"` // kickoff em segundos
	Odds      []RegisteredOdd `json:"odds"`
}

type RegisteredOdd struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Odd  string `json:"odd"`
}

// Client é o contrato que o motor consome. Chamadas repetidas com o mesmo
// payload são seguras: o ledger é idempotente ou rejeita duplicatas.
type Client interface {
	RegisterMatches(ctx context.Context, batch []MatchRegistration) (Receipt, error)
	RegisterScores(ctx context.Context, scores []model.MatchScore, rewards []model.Reward) (Receipt, error)
	GetPredictions(ctx context.Context, matchIDs []string) ([]model.Prediction, error)
	GetCurrentRound(ctx context.Context) (int64, error)
}

// Registrations converte partidas recém-geradas para o formato do ledger
func Registrations(ms []model.Match) []MatchRegistration {
	out := make([]MatchRegistration, 0, len(ms))
	for _, m := range ms {
		r := MatchRegistration{
			ID:        m.ID,
			Round:     m.Round,
			Timestamp: m.ScheduledAt.Unix(),
		}
		for _, p := range m.Payload.Odds.Paths() {
			o := m.Payload.Odds[p]
			r.Odds = append(r.Odds, RegisteredOdd{ID: o.ID, Path: p, Odd: o.Odd.String()})
		}
		out = append(out, r)
	}
	return out
}
