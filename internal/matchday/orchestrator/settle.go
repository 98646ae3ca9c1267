package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
	"github.com/radieske/virtual-matchday/internal/matchday/settlement"
	"github.com/radieske/virtual-matchday/pkg/contracts/events"
)

var errNoScore = errors.New("concluded match has no resolvable score")

// candidate é uma partida concluída com placar resolvido
type candidate struct {
	match model.Match
	score model.Score
	// payload com placar para gravar junto do settle (só partidas LIVE)
	update *model.Payload
}

// settle liquida as partidas concluídas e ainda não liquidadas.
// Escritas locais só são confirmadas se o ledger aceitar o lote.
func (o *Orchestrator) settle(ctx context.Context, rep *Report) error {
	now := o.now()
	concluded, err := o.store.FindMatches(ctx, repo.Filter{
		Settled:         repo.Bool(false),
		ScheduledBefore: now.Add(-o.cfg.SettlementGrace),
		Limit:           o.cfg.SettlementBatch,
	})
	var bad *repo.DecodeError
	if errors.As(err, &bad) {
		// linhas ilegíveis ficam fora do lote; o resto segue
		rep.Excluded = append(rep.Excluded, bad.IDs...)
		o.failed("decode", failure.Integrity("decode concluded matches", err))
	} else if err != nil {
		return failure.Transient("find concluded matches", err)
	}

	var cands []candidate
	for _, m := range concluded {
		c, err := o.resolveScore(ctx, m)
		if err != nil {
			rep.Excluded = append(rep.Excluded, m.ID)
			o.failed("resolve_score", err)
			continue
		}
		cands = append(cands, c)
	}

	cands, items := o.fetchPredictions(ctx, cands, rep)
	if len(cands) == 0 {
		return o.purgeOnly(ctx, rep)
	}

	rewards := settlement.SettleBatch(items)
	ids := make([]string, 0, len(cands))
	scores := make([]model.MatchScore, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.match.ID)
		scores = append(scores, model.MatchScore{MatchID: c.match.ID, Home: c.score.Home, Away: c.score.Away})
	}

	var receipt ledger.Receipt
	var purged int64
	err = o.store.WithinTx(ctx, func(tx repo.Tx) error {
		for _, c := range cands {
			if c.update == nil {
				continue
			}
			if err := tx.UpdateMatch(ctx, c.match.ID, repo.Update{Payload: c.update}); err != nil {
				return failure.Transient("store live score", err)
			}
		}
		if _, err := tx.MarkSettled(ctx, ids); err != nil {
			return failure.Transient("mark settled", err)
		}
		n, err := tx.DeleteMatches(ctx, retention(now, o.cfg.RetentionWindow))
		if err != nil {
			return failure.Transient("delete expired", err)
		}
		purged = n

		// última etapa: o commit depende da resposta do ledger
		return o.callLedger(ctx, "register_scores", func(lctx context.Context) error {
			var err error
			receipt, err = o.ledger.RegisterScores(lctx, scores, rewards)
			return err
		})
	})
	if err != nil {
		if isLedgerCall(err) {
			o.reportLedgerFailure(ctx, "register_scores", ids, err)
		}
		return err
	}

	rep.Settled = append(rep.Settled, ids...)
	rep.Rewards += len(rewards)
	rep.Purged += purged
	if o.hooks.OnSettled != nil {
		o.hooks.OnSettled(len(ids), len(rewards))
	}
	if o.hooks.OnPurged != nil && purged > 0 {
		o.hooks.OnPurged(purged)
	}
	o.log.Info("matches settled",
		zap.Int("matches", len(ids)),
		zap.Int("rewards", len(rewards)),
		zap.Int64("purged", purged),
		zap.String("receipt", receipt.TxHash),
	)

	o.afterCommit(ctx, func(p Publisher) error {
		return p.PublishMatchesSettled(ctx, settledEvent(scores, rewards, purged, receipt, o.now()))
	})
	return nil
}

// retention seleciona só partidas já liquidadas; as pendentes esperam a
// liquidação ou a quarentena
func retention(now time.Time, window time.Duration) repo.Filter {
	return repo.Filter{Settled: repo.Bool(true), ScheduledBefore: now.Add(-window)}
}

// purgeOnly aplica a retenção quando não há nada para liquidar
func (o *Orchestrator) purgeOnly(ctx context.Context, rep *Report) error {
	var purged int64
	err := o.store.WithinTx(ctx, func(tx repo.Tx) error {
		n, err := tx.DeleteMatches(ctx, retention(o.now(), o.cfg.RetentionWindow))
		purged = n
		return err
	})
	if err != nil {
		return failure.Transient("delete expired", err)
	}
	if purged > 0 {
		rep.Purged += purged
		if o.hooks.OnPurged != nil {
			o.hooks.OnPurged(purged)
		}
		if o.cache != nil {
			_ = o.cache.Invalidate(ctx)
		}
	}
	return nil
}

// resolveScore: virtual usa o placar pré-sorteado; live usa o payload ou a fonte de fixtures
func (o *Orchestrator) resolveScore(ctx context.Context, m model.Match) (candidate, error) {
	if m.Payload.Score != nil {
		return candidate{match: m, score: *m.Payload.Score}, nil
	}
	if m.Kind != model.KindLive || o.fixtures == nil {
		return candidate{}, failure.Integrity(m.ID, errNoScore)
	}

	f, err := o.fixtures.Fixture(ctx, m.Payload.Fixture.ID)
	if err != nil {
		return candidate{}, failure.Integrity(m.ID, fmt.Errorf("%w: fixture lookup: %w", errNoScore, err))
	}
	if f.Score == nil {
		return candidate{}, failure.Integrity(m.ID, fmt.Errorf("%w: fixture %s not finished", errNoScore, f.ID))
	}
	p := m.Payload
	score := *f.Score
	p.Score = &score
	return candidate{match: m, score: score, update: &p}, nil
}

// fetchPredictions busca as previsões de cada partida em paralelo.
// Uma falha tira só aquela partida do lote; ela volta no próximo tick.
func (o *Orchestrator) fetchPredictions(ctx context.Context, cands []candidate, rep *Report) ([]candidate, []settlement.Item) {
	preds := make([][]model.Prediction, len(cands))
	errs := make([]error, len(cands))

	sem := make(chan struct{}, o.cfg.FetchWorkers)
	var wg sync.WaitGroup
	for i := range cands {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			id := cands[i].match.ID
			errs[i] = o.callLedger(ctx, "get_predictions", func(lctx context.Context) error {
				var err error
				preds[i], err = o.ledger.GetPredictions(lctx, []string{id})
				return err
			})
		}(i)
	}
	wg.Wait()

	kept := cands[:0:0]
	items := make([]settlement.Item, 0, len(cands))
	for i, c := range cands {
		if errs[i] != nil {
			rep.Excluded = append(rep.Excluded, c.match.ID)
			o.failed("get_predictions", errs[i])
			continue
		}
		kept = append(kept, c)
		items = append(items, settlement.Item{Match: c.match, Score: c.score, Predictions: preds[i]})
	}
	return kept, items
}

// isLedgerCall diz se o erro veio de uma chamada ao ledger (e não do banco)
func isLedgerCall(err error) bool {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Op {
	case "register_scores", "register_matches":
		return true
	}
	return false
}

func settledEvent(scores []model.MatchScore, rewards []model.Reward, purged int64, rc ledger.Receipt, now time.Time) events.MatchesSettled {
	ev := events.MatchesSettled{Purged: purged, Receipt: rc.TxHash, Ts: now.UTC()}
	for _, s := range scores {
		ev.Scores = append(ev.Scores, events.SettledScore{MatchID: s.MatchID, Home: s.Home, Away: s.Away})
	}
	for _, r := range rewards {
		ev.Rewards = append(ev.Rewards, events.RewardPaid{MatchID: r.MatchID, Bettor: r.Bettor, OddsID: r.OddsID, Payout: r.Payout.String()})
	}
	return ev
}
