package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
	"github.com/radieske/virtual-matchday/pkg/contracts/events"
)

// roundState lê o estado do store; com store vazio a fronteira vem do ledger,
// salvo quando há rodadas pendentes de confirmação: aí o registro recomeça
// pela menor delas
func (o *Orchestrator) roundState(ctx context.Context) (model.RoundState, error) {
	st, err := o.store.RoundState(ctx)
	if err != nil {
		return model.RoundState{}, failure.Transient("round state", err)
	}
	if !st.Empty {
		for r := range o.pinned {
			if r <= st.Frontier {
				delete(o.pinned, r)
			}
		}
		return st, nil
	}
	if len(o.pinned) > 0 {
		lowest := int64(-1)
		for r := range o.pinned {
			if lowest < 0 || r < lowest {
				lowest = r
			}
		}
		return model.RoundState{Current: lowest, Frontier: lowest - 1, Empty: true}, nil
	}

	var round int64
	err = o.callLedger(ctx, "get_current_round", func(lctx context.Context) error {
		var err error
		round, err = o.ledger.GetCurrentRound(lctx)
		return err
	})
	if err != nil {
		return model.RoundState{}, err
	}
	return model.RoundState{Current: round + 1, Frontier: round, Empty: true}, nil
}

// replenish gera rodadas até restaurar o buffer mínimo e registra no ledger
// antes de confirmar o insert local
func (o *Orchestrator) replenish(ctx context.Context, rep *Report) error {
	st, err := o.roundState(ctx)
	if err != nil {
		return err
	}
	rep.State = st

	last, err := o.store.LastKickoff(ctx)
	if err != nil {
		return failure.Transient("last kickoff", err)
	}

	now := o.now()
	plan, err := o.builder.Replenish(o.leagues, st, last, now, o.pinned)
	if err != nil {
		return failure.Config("build rounds", err)
	}
	if len(plan.Matches) == 0 {
		return nil
	}

	ids := make([]string, len(plan.Matches))
	for i, m := range plan.Matches {
		ids[i] = m.ID
	}

	var receipt ledger.Receipt
	err = o.store.WithinTx(ctx, func(tx repo.Tx) error {
		if err := tx.CreateMatches(ctx, plan.Matches); err != nil {
			return failure.Transient("insert matches", err)
		}
		return o.callLedger(ctx, "register_matches", func(lctx context.Context) error {
			var err error
			receipt, err = o.ledger.RegisterMatches(lctx, ledger.Registrations(plan.Matches))
			return err
		})
	})
	if err != nil {
		if isLedgerCall(err) {
			// o ledger pode ter aplicado o lote; a repetição precisa ser idêntica
			for i, r := range plan.Rounds {
				o.pinned[r] = plan.Starts[i]
			}
			o.reportLedgerFailure(ctx, "register_matches", ids, err)
		}
		return err
	}
	for _, r := range plan.Rounds {
		delete(o.pinned, r)
	}

	rep.Rounds = append(rep.Rounds, plan.Rounds...)
	rep.Created += len(plan.Matches)
	rep.State = model.RoundState{Current: st.Current, Frontier: plan.Frontier}
	if o.hooks.OnReplenished != nil {
		o.hooks.OnReplenished(len(plan.Rounds), len(plan.Matches))
	}
	o.log.Info("rounds released",
		zap.Int64s("rounds", plan.Rounds),
		zap.Int("matches", len(plan.Matches)),
		zap.String("receipt", receipt.TxHash),
	)

	o.afterCommit(ctx, func(p Publisher) error {
		return p.PublishRoundsReleased(ctx, releasedEvent(plan.Matches, plan.Rounds, rep.State, receipt, now))
	})
	return nil
}

func releasedEvent(ms []model.Match, rounds []int64, st model.RoundState, rc ledger.Receipt, now time.Time) events.RoundsReleased {
	ev := events.RoundsReleased{
		Rounds:   rounds,
		Receipt:  rc.TxHash,
		Frontier: st.Frontier,
		Current:  st.Current,
		Ts:       now.UTC(),
	}
	for _, m := range ms {
		ev.Matches = append(ev.Matches, events.MatchHeader{
			MatchID:   m.ID,
			Round:     m.Round,
			KickoffMs: m.ScheduledAt.UnixMilli(),
			League:    m.Payload.League.Name,
			HomeTeam:  m.Payload.Teams.Home.Name,
			AwayTeam:  m.Payload.Teams.Away.Name,
		})
	}
	return ev
}
