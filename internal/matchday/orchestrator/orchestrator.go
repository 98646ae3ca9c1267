package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/matchday/fixtures"
	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
	"github.com/radieske/virtual-matchday/internal/matchday/schedule"
	"github.com/radieske/virtual-matchday/pkg/contracts/events"
)

// Publisher recebe os eventos emitidos depois de cada commit
type Publisher interface {
	PublishRoundsReleased(ctx context.Context, ev events.RoundsReleased) error
	PublishMatchesSettled(ctx context.Context, ev events.MatchesSettled) error
	PublishLedgerRejection(ctx context.Context, ev events.LedgerRejection) error
}

// Invalidator descarta o cache de leitura depois de um commit
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Config struct {
	TickInterval    time.Duration
	SettlementGrace time.Duration
	RetentionWindow time.Duration
	// partidas não liquidadas mais velhas que isso são descartadas e logadas
	QuarantineWindow time.Duration
	LedgerTimeout    time.Duration
	SettlementBatch  int
	FetchWorkers     int
	PauseTasks       bool
}

// Hooks são callbacks de observabilidade; todos opcionais
type Hooks struct {
	OnTick        func(r Report, took time.Duration)
	OnSkipped     func()
	OnFailure     func(stage string, kind failure.Kind)
	OnSettled     func(matches, rewards int)
	OnReplenished func(rounds, matches int)
	OnPurged      func(n int64)
	OnLedgerCall  func(op string, took time.Duration, err error)
}

// Report resume um tick
type Report struct {
	Skipped  bool
	State    model.RoundState
	Settled  []string
	Excluded []string
	Rewards  int
	Purged   int64
	// partidas nunca liquidadas descartadas após QuarantineWindow
	Quarantined []string
	Rounds      []int64
	Created     int
	Err         error
}

type Deps struct {
	Store     repo.Store
	Ledger    ledger.Client
	Fixtures  fixtures.Source // opcional; só partidas LIVE usam
	Builder   *schedule.Builder
	Leagues   []schedule.League
	Publisher Publisher   // opcional
	Cache     Invalidator // opcional
	Logger    *zap.Logger
	Hooks     Hooks
	Now       func() time.Time
}

// Orchestrator é o supervisor de um único worker: no máximo um tick em voo
type Orchestrator struct {
	store    repo.Store
	ledger   ledger.Client
	fixtures fixtures.Source
	builder  *schedule.Builder
	leagues  []schedule.League
	pub      Publisher
	cache    Invalidator
	log      *zap.Logger
	hooks    Hooks
	now      func() time.Time
	cfg      Config

	running atomic.Bool
	// início das rodadas enviadas ao ledger sem commit local confirmado;
	// só o tick em voo lê ou escreve
	pinned map[int64]time.Time
}

func New(d Deps, cfg Config) *Orchestrator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.SettlementBatch <= 0 {
		cfg.SettlementBatch = 200
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 8
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 30 * time.Second
	}
	if cfg.SettlementGrace <= 0 {
		cfg.SettlementGrace = 2 * time.Minute
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 24 * time.Hour
	}
	if cfg.QuarantineWindow <= cfg.RetentionWindow {
		cfg.QuarantineWindow = 3 * cfg.RetentionWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	return &Orchestrator{
		store:    d.Store,
		ledger:   d.Ledger,
		fixtures: d.Fixtures,
		builder:  d.Builder,
		leagues:  d.Leagues,
		pub:      d.Publisher,
		cache:    d.Cache,
		log:      d.Logger,
		hooks:    d.Hooks,
		now:      d.Now,
		cfg:      cfg,
		pinned:   map[int64]time.Time{},
	}
}

// Running indica se há um tick em andamento
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Tick executa um ciclo: liquida partidas concluídas e repõe o buffer de rodadas.
// Se outro tick estiver em andamento, retorna Report{Skipped: true} sem tocar
// no store nem no ledger.
func (o *Orchestrator) Tick(ctx context.Context) (Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.log.Debug("tick skipped, previous tick still running")
		if o.hooks.OnSkipped != nil {
			o.hooks.OnSkipped()
		}
		return Report{Skipped: true}, nil
	}
	defer o.running.Store(false)

	start := time.Now()
	var rep Report
	var errs []error

	if err := o.settle(ctx, &rep); err != nil {
		o.failed("settle", err)
		errs = append(errs, err)
	}
	if err := o.quarantine(ctx, &rep); err != nil {
		o.failed("quarantine", err)
		errs = append(errs, err)
	}
	if err := o.replenish(ctx, &rep); err != nil {
		o.failed("replenish", err)
		errs = append(errs, err)
	}

	rep.Err = errors.Join(errs...)
	took := time.Since(start)
	if o.hooks.OnTick != nil {
		o.hooks.OnTick(rep, took)
	}
	o.log.Info("tick finished",
		zap.Int("settled", len(rep.Settled)),
		zap.Int("excluded", len(rep.Excluded)),
		zap.Int("rewards", rep.Rewards),
		zap.Int64("purged", rep.Purged),
		zap.Int("quarantined", len(rep.Quarantined)),
		zap.Int("created", rep.Created),
		zap.Int64("current_round", rep.State.Current),
		zap.Int64("frontier_round", rep.State.Frontier),
		zap.Duration("took", took),
		zap.Error(rep.Err),
	)
	return rep, rep.Err
}

func (o *Orchestrator) failed(stage string, err error) {
	kind := failure.Classify(err)
	o.log.Error("tick stage failed", zap.String("stage", stage), zap.String("kind", string(kind)), zap.Error(err))
	if o.hooks.OnFailure != nil {
		o.hooks.OnFailure(stage, kind)
	}
}

// callLedger aplica o timeout de ledger, mede a chamada e classifica a falha
func (o *Orchestrator) callLedger(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	lctx, cancel := context.WithTimeout(ctx, o.cfg.LedgerTimeout)
	defer cancel()

	start := time.Now()
	err := fn(lctx)
	if o.hooks.OnLedgerCall != nil {
		o.hooks.OnLedgerCall(op, time.Since(start), err)
	}
	if err == nil {
		return nil
	}
	var rej *ledger.RejectionError
	if errors.As(err, &rej) {
		return failure.Rejected(op, err)
	}
	return failure.Transient(op, err)
}

// afterCommit roda efeitos colaterais que nunca desfazem o commit
func (o *Orchestrator) afterCommit(ctx context.Context, publish func(Publisher) error) {
	if o.cache != nil {
		if err := o.cache.Invalidate(ctx); err != nil {
			o.log.Warn("cache invalidation failed", zap.Error(err))
		}
	}
	if o.pub != nil {
		if err := publish(o.pub); err != nil {
			o.log.Warn("publish failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) reportLedgerFailure(ctx context.Context, op string, ids []string, err error) {
	if o.pub == nil {
		return
	}
	ev := events.LedgerRejection{
		Operation: op,
		Kind:      string(failure.Classify(err)),
		Reason:    err.Error(),
		MatchIDs:  ids,
		Ts:        o.now().UTC(),
	}
	if perr := o.pub.PublishLedgerRejection(ctx, ev); perr != nil {
		o.log.Warn("publish ledger rejection failed", zap.Error(perr))
	}
}
