package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/matchday/fixtures"
	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
	"github.com/radieske/virtual-matchday/internal/matchday/settlement"
)

func roundMatches(t *testing.T, h *harness, round int64) []model.Match {
	t.Helper()
	ms, err := h.store.FindMatches(context.Background(), repo.Filter{Round: &round, Kind: model.KindVirtual})
	require.NoError(t, err)
	return ms
}

// bet cria uma previsão travada no id da categoria informada
func bet(m model.Match, bettor, category string, cents int64) model.Prediction {
	return model.Prediction{
		Bettor:   bettor,
		MatchID:  m.ID,
		Category: category,
		Stake:    model.Amount{Value: cents, Scale: 2},
		OddsID:   m.Payload.Odds[category].ID,
	}
}

func TestTickBootstrapsFromLedgerRound(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10

	rep, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	assert.False(t, rep.Skipped)
	assert.Equal(t, []int64{11, 12, 13, 14}, rep.Rounds)
	assert.Equal(t, 8, rep.Created)
	assert.Equal(t, model.RoundState{Current: 11, Frontier: 14}, rep.State)

	require.Equal(t, 1, h.ledger.registerCalls())
	assert.Len(t, h.ledger.registered[0], 8)
	assert.Len(t, h.all(t), 8)

	st, err := h.store.RoundState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RoundState{Current: 11, Frontier: 14}, st)

	require.Len(t, h.pub.released, 1)
	assert.Equal(t, "0xmatches", h.pub.released[0].Receipt)
	assert.Equal(t, 1, h.cache.n)

	// o primeiro kickoff é now + RoundGap
	first := roundMatches(t, h, 11)
	require.Len(t, first, 2)
	assert.True(t, start.Add(2*time.Minute).Equal(first[0].ScheduledAt))
}

func TestRegisterMatchesRejectedLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	h.ledger.failMatches = &ledger.RejectionError{Operation: "register_matches", Status: 200, Msg: "paused"}

	rep, err := h.orch.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.LedgerRejection, failure.Classify(err))
	assert.Empty(t, rep.Rounds)
	assert.Empty(t, h.all(t))
	assert.Empty(t, h.pub.released)
	require.Len(t, h.pub.rejections, 1)
	rejectedIDs := h.pub.rejections[0].MatchIDs

	// próximo tick: mesmo lote, mesmos ids
	h.ledger.failMatches = nil
	_, err = h.orch.Tick(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, m := range h.all(t) {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	sort.Strings(rejectedIDs)
	assert.Equal(t, rejectedIDs, ids)
}

func TestTickSettlesConcludedRoundAndReplenishes(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	_, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	r11 := roundMatches(t, h, 11)
	require.Len(t, r11, 2)
	for _, m := range r11 {
		h.ledger.predictions[m.ID] = []model.Prediction{
			bet(m, "0xhome", "home", 1000),
			bet(m, "0xdraw", "draw", 500),
			bet(m, "0xaway", "away", 250),
		}
	}

	// round 11 começa em start+2m; concluída depois da carência
	h.clock.Advance(4 * time.Minute)
	rep, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{r11[0].ID, r11[1].ID}, rep.Settled)
	assert.Empty(t, rep.Excluded)

	calls := h.ledger.scoreCalls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Scores, 2)

	var items []settlement.Item
	for _, m := range r11 {
		assert.Contains(t, calls[0].Scores, model.MatchScore{MatchID: m.ID, Home: m.Payload.Score.Home, Away: m.Payload.Score.Away})
		items = append(items, settlement.Item{Match: m, Score: *m.Payload.Score, Predictions: h.ledger.predictions[m.ID]})
	}
	assert.Equal(t, mustJSON(t, settlement.SettleBatch(items)), mustJSON(t, calls[0].Rewards))
	assert.Equal(t, len(calls[0].Rewards), rep.Rewards)
	for _, r := range calls[0].Rewards {
		assert.True(t, r.Payout.Decimal().GreaterThan(decimal.Zero))
	}

	for _, m := range roundMatches(t, h, 11) {
		assert.True(t, m.Settled)
	}
	assert.Equal(t, []int64{15}, rep.Rounds)
	assert.Equal(t, model.RoundState{Current: 12, Frontier: 15}, rep.State)
	require.Len(t, h.pub.settled, 1)
	assert.Equal(t, "0xscores", h.pub.settled[0].Receipt)
}

func TestLedgerFailureReselectsSameBatch(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	_, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	for _, m := range roundMatches(t, h, 11) {
		h.ledger.predictions[m.ID] = []model.Prediction{bet(m, "0xa", "home", 700), bet(m, "0xb", "away", 300)}
	}
	h.clock.Advance(4 * time.Minute)

	h.ledger.failScores = errors.New("rpc unreachable")
	rep, err := h.orch.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.TransientIO, failure.Classify(err))
	assert.Empty(t, rep.Settled)
	for _, m := range roundMatches(t, h, 11) {
		assert.False(t, m.Settled, "local state must not change when the ledger call fails")
	}
	require.Len(t, h.pub.rejections, 1)
	assert.Equal(t, "register_scores", h.pub.rejections[0].Operation)

	h.ledger.failScores = nil
	rep, err = h.orch.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Settled, 2)

	calls := h.ledger.scoreCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, mustJSON(t, calls[0]), mustJSON(t, calls[1]), "retry must submit an identical batch")
}

func TestLedgerTimeoutIsTransient(t *testing.T) {
	h := newHarness(t, smallLeague(), func(_ *Deps, c *Config) { c.LedgerTimeout = 50 * time.Millisecond })
	h.ledger.round = 10
	_, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	h.clock.Advance(4 * time.Minute)
	h.ledger.blockScores = true

	_, err = h.orch.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, failure.TransientIO, failure.Classify(err))
	for _, m := range roundMatches(t, h, 11) {
		assert.False(t, m.Settled)
	}
	assert.False(t, h.orch.Running(), "flag must be released after a failed tick")
}

func TestOverlappingTickIsNoop(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	_, err := h.orch.Tick(context.Background())
	require.NoError(t, err)
	h.clock.Advance(4 * time.Minute)

	h.ledger.entered = make(chan struct{}, 1)
	h.ledger.release = make(chan struct{})

	var wg sync.WaitGroup
	var first Report
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = h.orch.Tick(context.Background())
	}()

	<-h.ledger.entered
	second, err := h.orch.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(h.ledger.release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.False(t, first.Skipped)
	assert.Len(t, first.Settled, 2)
	assert.Len(t, h.ledger.scoreCalls(), 1, "no duplicate ledger submission")
}

func TestMissingScoreIsExcluded(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	_, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	broken := roundMatches(t, h, 11)[0]
	broken.ID = "broken"
	broken.Payload.Score = nil
	broken.Payload.Odds = model.OddsTable{"home": {ID: "zz", Odd: decimal.NewFromInt(2)}}
	ctx := context.Background()
	require.NoError(t, h.store.WithinTx(ctx, func(tx repo.Tx) error { return tx.CreateMatches(ctx, []model.Match{broken}) }))

	var kinds []failure.Kind
	h.orch.hooks.OnFailure = func(_ string, k failure.Kind) { kinds = append(kinds, k) }

	h.clock.Advance(4 * time.Minute)
	rep, err := h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, rep.Excluded)
	assert.Len(t, rep.Settled, 2)
	assert.Contains(t, kinds, failure.DataIntegrity)

	calls := h.ledger.scoreCalls()
	require.Len(t, calls, 1)
	for _, s := range calls[0].Scores {
		assert.NotEqual(t, "broken", s.MatchID)
	}
}

func TestPredictionFetchFailureIsIsolated(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	_, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	r11 := roundMatches(t, h, 11)
	h.ledger.failPreds[r11[0].ID] = errors.New("timeout")
	h.clock.Advance(4 * time.Minute)

	rep, err := h.orch.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{r11[1].ID}, rep.Settled)
	assert.Equal(t, []string{r11[0].ID}, rep.Excluded)
}

func TestLiveMatchScoreFromFixtures(t *testing.T) {
	src := fakeFixtures{"900": {ID: "900", Score: &model.Score{Home: 3, Away: 1}}}
	h := newHarness(t, smallLeague(), func(d *Deps, _ *Config) { d.Fixtures = src })
	h.ledger.round = 10

	live := model.Match{
		ID:          "live-900",
		ScheduledAt: start.Add(-3 * time.Hour),
		Kind:        model.KindLive,
		Payload: model.Payload{
			Fixture: model.Fixture{ID: "900", Duration: 5400},
			Odds: model.OddsTable{
				"home": {ID: "lh", Odd: decimal.RequireFromString("1.50")},
				"away": {ID: "la", Odd: decimal.RequireFromString("3.00")},
			},
		},
	}
	ctx := context.Background()
	require.NoError(t, h.store.WithinTx(ctx, func(tx repo.Tx) error { return tx.CreateMatches(ctx, []model.Match{live}) }))
	h.ledger.predictions[live.ID] = []model.Prediction{bet(live, "0xfan", "home", 2000)}

	rep, err := h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live-900"}, rep.Settled)

	calls := h.ledger.scoreCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Rewards, 1)
	assert.Equal(t, "30.00", calls[0].Rewards[0].Payout.String())

	got, err := h.store.FindMatches(ctx, repo.Filter{IDs: []string{"live-900"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Settled)
	assert.Equal(t, model.Score{Home: 3, Away: 1}, *got[0].Payload.Score)

	// live não entra na contagem de rodadas
	assert.Equal(t, []int64{11, 12, 13, 14}, rep.Rounds)
}

func TestLiveMatchWithoutFinalScoreWaits(t *testing.T) {
	src := fakeFixtures{"901": {ID: "901"}}
	h := newHarness(t, smallLeague(), func(d *Deps, _ *Config) { d.Fixtures = src })
	h.ledger.round = 10

	ctx := context.Background()
	live := model.Match{ID: "live-901", ScheduledAt: start.Add(-time.Hour), Kind: model.KindLive,
		Payload: model.Payload{Fixture: model.Fixture{ID: "901"}, Odds: model.OddsTable{"home": {ID: "x", Odd: decimal.NewFromInt(2)}}}}
	require.NoError(t, h.store.WithinTx(ctx, func(tx repo.Tx) error { return tx.CreateMatches(ctx, []model.Match{live}) }))

	rep, err := h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live-901"}, rep.Excluded)
	assert.Empty(t, h.ledger.scoreCalls())
}

func TestRetentionPurgesOldMatches(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	_, err := h.orch.Tick(context.Background())
	require.NoError(t, err)

	old := roundMatches(t, h, 11)[0]
	old.ID = "old"
	old.Round = 1
	old.Settled = true
	old.ScheduledAt = start.Add(-48 * time.Hour)
	old.Payload.Odds = model.OddsTable{"home": {ID: "old-h", Odd: decimal.NewFromInt(2)}}
	ctx := context.Background()
	require.NoError(t, h.store.WithinTx(ctx, func(tx repo.Tx) error { return tx.CreateMatches(ctx, []model.Match{old}) }))

	rep, err := h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.Purged)

	got, err := h.store.FindMatches(ctx, repo.Filter{IDs: []string{"old"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBufferHoldsAcrossTicks(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 0

	for i := 0; i < 12; i++ {
		if i == 5 {
			h.ledger.failMatches = errors.New("gateway down")
		}
		if i == 7 {
			h.ledger.failMatches = nil
		}
		rep, err := h.orch.Tick(context.Background())
		if err == nil {
			assert.GreaterOrEqual(t, rep.State.Buffer(), int64(3), "tick %d", i)
		} else {
			assert.Equal(t, failure.TransientIO, failure.Classify(err), "tick %d", i)
		}
		h.clock.Advance(2 * time.Minute)
	}
}

func TestRunPausedDoesNotTick(t *testing.T) {
	h := newHarness(t, smallLeague(), func(_ *Deps, c *Config) { c.PauseTasks = true })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, h.ledger.registerCalls())
}

func TestRunTicksImmediately(t *testing.T) {
	h := newHarness(t, smallLeague(), func(_ *Deps, c *Config) { c.TickInterval = time.Hour })
	h.ledger.round = 3
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	require.Eventually(t, func() bool { return h.ledger.registerCalls() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

var _ fixtures.Source = fakeFixtures{}

func TestRetentionKeepsUnsettledMatches(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	ctx := context.Background()
	_, err := h.orch.Tick(ctx)
	require.NoError(t, err)

	stuck := roundMatches(t, h, 11)[0]
	h.ledger.failPreds[stuck.ID] = errors.New("gateway timeout")

	h.clock.Advance(25 * time.Hour)
	rep, err := h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Contains(t, rep.Excluded, stuck.ID)
	assert.NotContains(t, rep.Settled, stuck.ID)
	assert.Empty(t, rep.Quarantined)

	got, err := h.store.FindMatches(ctx, repo.Filter{IDs: []string{stuck.ID}})
	require.NoError(t, err)
	require.Len(t, got, 1, "unsettled match must survive the retention purge")
	assert.False(t, got[0].Settled)

	// o ledger volta: a partida é liquidada e só então sai pela retenção
	delete(h.ledger.failPreds, stuck.ID)
	rep, err = h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Contains(t, rep.Settled, stuck.ID)

	var sent []string
	for _, c := range h.ledger.scoreCalls() {
		for _, s := range c.Scores {
			sent = append(sent, s.MatchID)
		}
	}
	assert.Contains(t, sent, stuck.ID)
}

func TestQuarantineDropsLongUnsettledMatches(t *testing.T) {
	h := newHarness(t, smallLeague(), func(_ *Deps, c *Config) { c.QuarantineWindow = 72 * time.Hour })
	h.ledger.round = 10
	ctx := context.Background()
	_, err := h.orch.Tick(ctx)
	require.NoError(t, err)

	stuck := roundMatches(t, h, 11)[0]
	h.ledger.failPreds[stuck.ID] = errors.New("gateway timeout")

	var stages []string
	var kinds []failure.Kind
	h.orch.hooks.OnFailure = func(stage string, k failure.Kind) {
		stages = append(stages, stage)
		kinds = append(kinds, k)
	}

	h.clock.Advance(48 * time.Hour)
	rep, err := h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Quarantined)

	h.clock.Advance(25 * time.Hour)
	invalidations := h.cache.n
	rep, err = h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{stuck.ID}, rep.Quarantined)
	assert.Contains(t, stages, "quarantine")
	assert.Contains(t, kinds, failure.DataIntegrity)
	assert.Greater(t, h.cache.n, invalidations)

	got, err := h.store.FindMatches(ctx, repo.Filter{IDs: []string{stuck.ID}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUndecodableRowDoesNotBlockSettlement(t *testing.T) {
	h := newHarness(t, smallLeague())
	h.ledger.round = 10
	ctx := context.Background()
	_, err := h.orch.Tick(ctx)
	require.NoError(t, err)

	r11 := roundMatches(t, h, 11)
	h.insertRaw(t, "corrupt", 11, r11[0].ScheduledAt, `{not json`)

	var kinds []failure.Kind
	h.orch.hooks.OnFailure = func(_ string, k failure.Kind) { kinds = append(kinds, k) }

	h.clock.Advance(4 * time.Minute)
	rep, err := h.orch.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"corrupt"}, rep.Excluded)
	assert.ElementsMatch(t, []string{r11[0].ID, r11[1].ID}, rep.Settled)
	assert.Contains(t, kinds, failure.DataIntegrity)

	calls := h.ledger.scoreCalls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Scores, 2)
}
