package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/radieske/virtual-matchday/internal/matchday/fixtures"
	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
	"github.com/radieske/virtual-matchday/internal/matchday/schedule"
	"github.com/radieske/virtual-matchday/internal/matchday/script"
	"github.com/radieske/virtual-matchday/internal/shared/db"
	"github.com/radieske/virtual-matchday/pkg/contracts/events"
)

type scoresCall struct {
	Scores  []model.MatchScore
	Rewards []model.Reward
}

// fakeLedger grava as chamadas e deixa cada operação falhar sob demanda
type fakeLedger struct {
	mu sync.Mutex

	round       int64
	predictions map[string][]model.Prediction

	registered [][]ledger.MatchRegistration
	scores     []scoresCall
	predCalls  int

	failMatches error
	failScores  error
	failPreds   map[string]error
	blockScores bool

	// se não nil, GetPredictions avisa em entered e espera release
	entered chan struct{}
	release chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{predictions: map[string][]model.Prediction{}, failPreds: map[string]error{}}
}

func (f *fakeLedger) RegisterMatches(_ context.Context, batch []ledger.MatchRegistration) (ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMatches != nil {
		return ledger.Receipt{}, f.failMatches
	}
	f.registered = append(f.registered, batch)
	return ledger.Receipt{TxHash: "0xmatches"}, nil
}

func (f *fakeLedger) RegisterScores(ctx context.Context, scores []model.MatchScore, rewards []model.Reward) (ledger.Receipt, error) {
	f.mu.Lock()
	block, fail := f.blockScores, f.failScores
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ledger.Receipt{}, ctx.Err()
	}
	if fail != nil {
		f.mu.Lock()
		f.scores = append(f.scores, scoresCall{Scores: scores, Rewards: rewards})
		f.mu.Unlock()
		return ledger.Receipt{}, fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = append(f.scores, scoresCall{Scores: scores, Rewards: rewards})
	return ledger.Receipt{TxHash: "0xscores"}, nil
}

func (f *fakeLedger) GetPredictions(_ context.Context, ids []string) ([]model.Prediction, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predCalls++
	var out []model.Prediction
	for _, id := range ids {
		if err := f.failPreds[id]; err != nil {
			return nil, err
		}
		out = append(out, f.predictions[id]...)
	}
	return out, nil
}

func (f *fakeLedger) GetCurrentRound(context.Context) (int64, error) {
	return f.round, nil
}

func (f *fakeLedger) scoreCalls() []scoresCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scoresCall(nil), f.scores...)
}

func (f *fakeLedger) registerCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

type fakeFixtures map[string]fixtures.Fixture

func (f fakeFixtures) Fixture(_ context.Context, id string) (fixtures.Fixture, error) {
	fx, ok := f[id]
	if !ok {
		return fixtures.Fixture{}, fixtures.ErrNotFound
	}
	return fx, nil
}

type fakePublisher struct {
	mu         sync.Mutex
	released   []events.RoundsReleased
	settled    []events.MatchesSettled
	rejections []events.LedgerRejection
}

func (p *fakePublisher) PublishRoundsReleased(_ context.Context, ev events.RoundsReleased) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, ev)
	return nil
}

func (p *fakePublisher) PublishMatchesSettled(_ context.Context, ev events.MatchesSettled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, ev)
	return nil
}

func (p *fakePublisher) PublishLedgerRejection(_ context.Context, ev events.LedgerRejection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejections = append(p.rejections, ev)
	return nil
}

type countingCache struct {
	mu sync.Mutex
	n  int
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

// clock é um relógio manual para os testes
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	db     *sqlx.DB
	orch   *Orchestrator
	store  *repo.SQLStore
	ledger *fakeLedger
	pub    *fakePublisher
	cache  *countingCache
	clock  *clock
}

var start = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, leagues []schedule.League, mutate ...func(*Deps, *Config)) *harness {
	t.Helper()
	conn, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := repo.NewSQLStore(conn)
	require.NoError(t, store.Migrate(context.Background()))

	h := &harness{
		db:     conn,
		store:  store,
		ledger: newFakeLedger(),
		pub:    &fakePublisher{},
		cache:  &countingCache{},
		clock:  &clock{t: start},
	}
	builder := schedule.NewBuilder(schedule.Config{
		Seed:          "test",
		LeagueGap:     2 * time.Minute,
		RoundGap:      2 * time.Minute,
		MatchDuration: 120 * time.Second,
		MinimumBuffer: 3,
	}, script.New(script.DefaultConfig()))

	deps := Deps{
		Store:     store,
		Ledger:    h.ledger,
		Builder:   builder,
		Leagues:   leagues,
		Publisher: h.pub,
		Cache:     h.cache,
		Now:       h.clock.Now,
	}
	cfg := Config{
		TickInterval:    time.Minute,
		SettlementGrace: 2 * time.Minute,
		RetentionWindow: 24 * time.Hour,
		LedgerTimeout:   time.Second,
		SettlementBatch: 200,
	}
	for _, m := range mutate {
		m(&deps, &cfg)
	}
	h.orch = New(deps, cfg)
	return h
}

// smallLeague gera uma liga de 4 times: 2 partidas por rodada
func smallLeague() []schedule.League {
	return []schedule.League{{
		ID:   "l1",
		Name: "Test League",
		Teams: []model.Team{
			{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}, {ID: "d", Name: "D"},
		},
	}}
}

func (h *harness) all(t *testing.T) []model.Match {
	t.Helper()
	ms, err := h.store.FindMatches(context.Background(), repo.Filter{})
	require.NoError(t, err)
	return ms
}

// insertRaw grava uma linha direto na tabela, sem passar pelo encoder do store
func (h *harness) insertRaw(t *testing.T, id string, round int64, at time.Time, payload string) {
	t.Helper()
	q := h.db.Rebind(`INSERT INTO matches (id, round, scheduled_at, settled, kind, payload) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := h.db.ExecContext(context.Background(), q, id, round, at.UnixMilli(), false, string(model.KindVirtual), payload)
	require.NoError(t, err)
}

// lostReplyLedger deixa o registro chegar ao ledger mas perde a resposta
type lostReplyLedger struct {
	ledger.Client

	mu    sync.Mutex
	drops int
}

func (l *lostReplyLedger) drop(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drops = n
}

func (l *lostReplyLedger) RegisterMatches(ctx context.Context, batch []ledger.MatchRegistration) (ledger.Receipt, error) {
	rc, err := l.Client.RegisterMatches(ctx, batch)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil && l.drops > 0 {
		l.drops--
		return ledger.Receipt{}, errors.New("read tcp: connection reset by peer")
	}
	return rc, err
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
