package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/shared/cron"
)

// Run faz um tick imediato e depois um a cada TickInterval até ctx terminar.
// Disparos que chegam com um tick em andamento viram no-op.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.PauseTasks {
		o.log.Warn("background tasks paused (PAUSE_TASKS=YES)")
		<-ctx.Done()
		return nil
	}

	runner := cron.New(o.log, ctx)
	expr := fmt.Sprintf("@every %s", o.cfg.TickInterval)
	if _, err := runner.Add(expr, o.tick); err != nil {
		return failure.Config("schedule tick", err)
	}

	o.tick(ctx)
	runner.Start()
	o.log.Info("orchestrator running", zap.Duration("interval", o.cfg.TickInterval))

	<-ctx.Done()
	runner.Stop()
	return nil
}

func (o *Orchestrator) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// o erro já foi logado e contabilizado em Tick
	_, _ = o.Tick(ctx)
}
