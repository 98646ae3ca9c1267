package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
)

// quarantine descarta partidas que passaram de QuarantineWindow sem liquidação.
// Sem isso uma partida sem placar prenderia a rodada corrente para sempre.
// Cada descarte é logado com os ids e contado como falha de integridade.
func (o *Orchestrator) quarantine(ctx context.Context, rep *Report) error {
	stale, err := o.store.FindMatches(ctx, repo.Filter{
		Settled:         repo.Bool(false),
		ScheduledBefore: o.now().Add(-o.cfg.QuarantineWindow),
	})
	var bad *repo.DecodeError
	if err != nil && !errors.As(err, &bad) {
		return failure.Transient("find stale matches", err)
	}

	ids := make([]string, 0, len(stale))
	for _, m := range stale {
		ids = append(ids, m.ID)
	}
	if bad != nil {
		ids = append(ids, bad.IDs...)
	}
	if len(ids) == 0 {
		return nil
	}

	var n int64
	err = o.store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		n, err = tx.DeleteMatches(ctx, repo.Filter{IDs: ids, Settled: repo.Bool(false)})
		return err
	})
	if err != nil {
		return failure.Transient("delete stale matches", err)
	}

	o.log.Error("unsettled matches quarantined",
		zap.Strings("ids", ids),
		zap.Int64("deleted", n),
		zap.Duration("window", o.cfg.QuarantineWindow),
	)
	rep.Quarantined = append(rep.Quarantined, ids...)
	if o.hooks.OnFailure != nil {
		o.hooks.OnFailure("quarantine", failure.DataIntegrity)
	}
	if o.cache != nil {
		if err := o.cache.Invalidate(ctx); err != nil {
			o.log.Warn("cache invalidation failed", zap.Error(err))
		}
	}
	return nil
}
