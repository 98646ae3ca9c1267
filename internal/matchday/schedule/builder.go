package schedule

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/script"
)

// ErrNoFixtures indica um catálogo incapaz de formar um único confronto
var ErrNoFixtures = errors.New("catalog produces no fixtures")

type Config struct {
	Seed          string
	LeagueGap     time.Duration
	RoundGap      time.Duration
	MatchDuration time.Duration
	MinimumBuffer int64
}

// Builder monta rodadas. Mesma seed e mesma rodada geram os mesmos ids,
// confrontos e placares, o que torna a reposição segura para repetir.
type Builder struct {
	cfg Config
	gen *script.Generator
	ns  uuid.UUID
}

func NewBuilder(cfg Config, gen *script.Generator) *Builder {
	if cfg.LeagueGap <= 0 {
		cfg.LeagueGap = 2 * time.Minute
	}
	if cfg.RoundGap <= 0 {
		cfg.RoundGap = 2 * time.Minute
	}
	if cfg.MatchDuration <= 0 {
		cfg.MatchDuration = 120 * time.Second
	}
	if cfg.MinimumBuffer <= 0 {
		cfg.MinimumBuffer = 3
	}
	return &Builder{
		cfg: cfg,
		gen: gen,
		ns:  uuid.NewSHA1(uuid.NameSpaceURL, []byte("matchday:"+cfg.Seed)),
	}
}

func (b *Builder) rngFor(round int64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(b.cfg.Seed))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatInt(round, 10)))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// MatchID é o id determinístico de um confronto
func (b *Builder) MatchID(round int64, leagueID string, index int) string {
	return uuid.NewSHA1(b.ns, []byte(fmt.Sprintf("%d/%s/%d", round, leagueID, index))).String()
}

// ScheduleRound embaralha cada liga (Fisher–Yates), pareia os times em sequência
// e gera uma partida por confronto. A liga i começa em start + i*LeagueGap.
func (b *Builder) ScheduleRound(leagues []League, start time.Time, round int64) ([]model.Match, error) {
	rng := b.rngFor(round)
	var out []model.Match

	for li, lg := range leagues {
		teams := append([]model.Team(nil), lg.Teams...)
		rng.Shuffle(len(teams), func(i, j int) { teams[i], teams[j] = teams[j], teams[i] })
		if len(teams)%2 == 1 {
			// time ímpar fica fora da rodada
			teams = teams[:len(teams)-1]
		}

		kickoff := start.Add(time.Duration(li) * b.cfg.LeagueGap).Truncate(time.Millisecond)
		for i := 0; i+1 < len(teams); i += 2 {
			home, away := teams[i], teams[i+1]
			s, err := b.gen.Generate(rng, home, away, kickoff, b.cfg.MatchDuration)
			if err != nil {
				return nil, fmt.Errorf("round %d league %s: %w", round, lg.ID, err)
			}
			id := b.MatchID(round, lg.ID, i/2)
			score := s.Score
			out = append(out, model.Match{
				ID:          id,
				Round:       round,
				ScheduledAt: kickoff.UTC(),
				Kind:        model.KindVirtual,
				Payload: model.Payload{
					Fixture: model.Fixture{
						ID:       id,
						Date:     kickoff.UnixMilli(),
						Duration: int(b.cfg.MatchDuration / time.Second),
					},
					League: model.League{ID: lg.ID, Name: lg.Name},
					Teams:  model.Teams{Home: home, Away: away},
					Score:  &score,
					Events: s.Events,
					Odds:   s.Odds,
				},
			})
		}
	}
	return out, nil
}

// Plan é o resultado de uma reposição; Starts[i] é o início de Rounds[i]
type Plan struct {
	Rounds   []int64
	Starts   []time.Time
	Matches  []model.Match
	Frontier int64
}

// Replenish gera rodadas Frontier+1, Frontier+2... até que Frontier - Current
// alcance MinimumBuffer. Cada rodada começa RoundGap depois do último kickoff
// da anterior, nunca antes de now + RoundGap. Uma rodada presente em pinned
// reusa aquele início, assim a repetição de um registro já enviado ao ledger
// gera exatamente o mesmo lote.
func (b *Builder) Replenish(leagues []League, state model.RoundState, lastKickoff, now time.Time, pinned map[int64]time.Time) (Plan, error) {
	plan := Plan{Frontier: state.Frontier}
	last := lastKickoff

	for plan.Frontier-state.Current < b.cfg.MinimumBuffer {
		round := plan.Frontier + 1
		start, ok := pinned[round]
		if !ok {
			start = last.Add(b.cfg.RoundGap)
			if floor := now.Add(b.cfg.RoundGap); start.Before(floor) {
				start = floor
			}
		}

		ms, err := b.ScheduleRound(leagues, start, round)
		if err != nil {
			return Plan{}, err
		}
		if len(ms) == 0 {
			return Plan{}, ErrNoFixtures
		}
		for _, m := range ms {
			if m.ScheduledAt.After(last) {
				last = m.ScheduledAt
			}
		}

		plan.Rounds = append(plan.Rounds, round)
		plan.Starts = append(plan.Starts, start)
		plan.Matches = append(plan.Matches, ms...)
		plan.Frontier = round
	}
	return plan, nil
}
