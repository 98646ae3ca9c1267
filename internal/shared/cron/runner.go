package cron

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner encapsula o robfig/cron com logger zap e um contexto base repassado aos jobs
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := zapCronLogger{s: logger.Sugar()}
	return &Runner{
		// panic num job é logado e não derruba o scheduler
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registra um job; expressão no formato do robfig (ex: "@every 60s")
func (r *Runner) Add(expr string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(expr, func() {
		job(r.baseCtx)
	})
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

// Stop para o agendamento e espera jobs em andamento terminarem
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

// zapCronLogger adapta zap ao cron.Logger
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
