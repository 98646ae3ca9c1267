package script

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

// ErrDurationTooShort indica que os gols sorteados não cabem no tempo de jogo
var ErrDurationTooShort = errors.New("duration too short for drawn goals")

// Pesos padrão por número de gols (0..6), puxando para placares baixos
var defaultGoalWeights = []float64{0.27, 0.33, 0.21, 0.11, 0.05, 0.02, 0.01}

// Categorias de resultado oferecidas em toda partida virtual
var Categories = []string{"home", "draw", "away"}

type Config struct {
	MaxGoals    int
	GoalWeights []float64 // len == MaxGoals+1
	SequenceLen int       // eventos por jogada de gol, incluindo o gol
	Step        int       // segundos entre eventos de uma jogada
	FillerRate  float64   // chance de um slot livre ter lance avulso
	Skew        Skew
	IDLen       int
}

func DefaultConfig() Config {
	return Config{
		MaxGoals:    6,
		GoalWeights: defaultGoalWeights,
		SequenceLen: 4,
		Step:        2,
		FillerRate:  0.6,
		Skew:        DefaultSkew(),
		IDLen:       4,
	}
}

type Generator struct {
	cfg Config
}

func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.MaxGoals <= 0 {
		cfg.MaxGoals = def.MaxGoals
	}
	if len(cfg.GoalWeights) != cfg.MaxGoals+1 {
		if cfg.MaxGoals == def.MaxGoals {
			cfg.GoalWeights = def.GoalWeights
		} else {
			cfg.GoalWeights = uniform(cfg.MaxGoals + 1)
		}
	}
	if cfg.SequenceLen <= 0 {
		cfg.SequenceLen = def.SequenceLen
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.FillerRate < 0 || cfg.FillerRate > 1 {
		cfg.FillerRate = def.FillerRate
	}
	if cfg.Skew.Max.IsZero() {
		cfg.Skew = def.Skew
	}
	if cfg.IDLen <= 0 {
		cfg.IDLen = def.IDLen
	}
	return &Generator{cfg: cfg}
}

// Script é a partida virtual completa: placar decidido antes do roteiro
type Script struct {
	Kickoff  time.Time
	Duration time.Duration
	Score    model.Score
	Events   []model.Event
	Odds     model.OddsTable
}

// Until repete o roteiro até elapsed segundos
func (s Script) Until(elapsed int) []model.Event {
	return model.EventsUntil(s.Events, elapsed)
}

// Generate sorteia o placar, monta o roteiro que produz exatamente esse placar
// e sorteia as odds. O rng é do chamador para que rodadas sejam reprodutíveis.
func (g *Generator) Generate(rng *rand.Rand, home, away model.Team, kickoff time.Time, duration time.Duration) (Script, error) {
	score := model.Score{Home: g.drawGoals(rng), Away: g.drawGoals(rng)}

	events, err := g.Timeline(rng, score, duration)
	if err != nil {
		return Script{}, fmt.Errorf("%s x %s: %w", home.Name, away.Name, err)
	}

	odds, err := g.Odds(rng)
	if err != nil {
		return Script{}, err
	}

	return Script{
		Kickoff:  kickoff,
		Duration: duration,
		Score:    score,
		Events:   events,
		Odds:     odds,
	}, nil
}

func (g *Generator) drawGoals(rng *rand.Rand) int {
	var total float64
	for _, w := range g.cfg.GoalWeights {
		total += w
	}
	r := rng.Float64() * total
	for n, w := range g.cfg.GoalWeights {
		if r < w {
			return n
		}
		r -= w
	}
	return g.cfg.MaxGoals
}

// Timeline monta o roteiro para um placar já decidido.
// Cada gol ocupa um slot [start, start+width) inteiro dentro de um tempo;
// slots nunca cruzam o intervalo.
func (g *Generator) Timeline(rng *rand.Rand, score model.Score, duration time.Duration) ([]model.Event, error) {
	if score.Home < 0 || score.Away < 0 {
		return nil, fmt.Errorf("negative score %s", score)
	}
	total := int(duration / time.Second)
	half := total / 2
	goals := score.Home + score.Away

	seqLen, width, slots := g.layout(total, goals)
	if goals > len(slots) {
		return nil, fmt.Errorf("%w: %d goals in %ds", ErrDurationTooShort, goals, total)
	}

	events := []model.Event{{At: 0, Type: model.EventKickoff, X: 50, Y: 50}}

	// escolhe os slots de gol e distribui os lados
	picked := rng.Perm(len(slots))[:goals]
	sort.Ints(picked)
	sides := make([]model.Side, 0, goals)
	for i := 0; i < score.Home; i++ {
		sides = append(sides, model.SideHome)
	}
	for i := 0; i < score.Away; i++ {
		sides = append(sides, model.SideAway)
	}
	rng.Shuffle(len(sides), func(i, j int) { sides[i], sides[j] = sides[j], sides[i] })

	used := make(map[int]bool, goals)
	for i, si := range picked {
		used[si] = true
		events = append(events, g.goalSequence(rng, slots[si], seqLen, sides[i], i+1)...)
	}

	for si, start := range slots {
		if used[si] || rng.Float64() >= g.cfg.FillerRate {
			continue
		}
		events = append(events, g.filler(rng, start, width)...)
	}

	events = append(events,
		model.Event{At: half, Type: model.EventHalftime, X: 50, Y: 50},
		model.Event{At: total, Type: model.EventFulltime, X: 50, Y: 50},
	)

	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })
	return events, nil
}

// layout calcula a grade de slots. Se os gols não cabem, encurta a jogada até caber.
func (g *Generator) layout(total, goals int) (seqLen, width int, slots []int) {
	half := total / 2
	for seqLen = g.cfg.SequenceLen; seqLen >= 1; seqLen-- {
		width = seqLen * g.cfg.Step
		slots = slots[:0]
		// primeiro tempo: (0, half); segundo tempo: (half, total)
		for _, h := range [][2]int{{1, half - 1}, {half + 1, total - 1}} {
			for start := h[0]; start+width-1 <= h[1]; start += width {
				slots = append(slots, start)
			}
		}
		if len(slots) >= goals {
			return seqLen, width, slots
		}
	}
	return 1, g.cfg.Step, slots
}

// goalSequence gera a construção da jogada terminando no gol do lado que marcou
func (g *Generator) goalSequence(rng *rand.Rand, start, seqLen int, side model.Side, seq int) []model.Event {
	out := make([]model.Event, 0, seqLen)
	x := 50 + rng.Intn(11) - 5
	for k := 0; k < seqLen-1; k++ {
		x = advance(x, side, 10+rng.Intn(15))
		out = append(out, model.Event{
			At:   start + k*g.cfg.Step,
			Type: model.EventMove,
			Side: side,
			Seq:  seq,
			X:    x,
			Y:    15 + rng.Intn(71),
		})
	}
	goalX := 100
	if side == model.SideAway {
		goalX = 0
	}
	out = append(out, model.Event{
		At:   start + (seqLen-1)*g.cfg.Step,
		Type: model.EventGoal,
		Side: side,
		Seq:  seq,
		X:    goalX,
		Y:    40 + rng.Intn(21),
	})
	return out
}

// filler gera um lance sem gol: avanço, às vezes finalização e defesa
func (g *Generator) filler(rng *rand.Rand, start, width int) []model.Event {
	side := model.SideHome
	if rng.Intn(2) == 1 {
		side = model.SideAway
	}
	x := advance(50, side, rng.Intn(30))
	out := []model.Event{{At: start, Type: model.EventMove, Side: side, X: x, Y: 10 + rng.Intn(81)}}
	if width < 2*g.cfg.Step || rng.Intn(3) == 0 {
		return out
	}
	shotX := advance(x, side, 15)
	out = append(out, model.Event{At: start + g.cfg.Step, Type: model.EventShot, Side: side, X: shotX, Y: 30 + rng.Intn(41)})
	if width >= 3*g.cfg.Step {
		out = append(out, model.Event{At: start + 2*g.cfg.Step, Type: model.EventSave, Side: side.Opponent(), X: shotX, Y: 45 + rng.Intn(11)})
	}
	return out
}

// advance move a bola em direção ao gol adversário, sem chegar na linha
func advance(x int, side model.Side, d int) int {
	if side == model.SideAway {
		x -= d
	} else {
		x += d
	}
	if x > 95 {
		x = 95
	}
	if x < 5 {
		x = 5
	}
	return x
}

// Odds sorteia multiplicador e id para cada categoria
func (g *Generator) Odds(rng *rand.Rand) (model.OddsTable, error) {
	tbl := make(model.OddsTable, len(Categories))
	ids := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		id := randomID(rng, g.cfg.IDLen)
		for ids[id] {
			id = randomID(rng, g.cfg.IDLen)
		}
		ids[id] = true
		tbl[c] = model.Odd{ID: id, Odd: g.cfg.Skew.Sample(rng)}
	}
	return tbl, tbl.Validate()
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomID(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rng.Intn(len(idAlphabet))]
	}
	return string(b)
}

func uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// Skew controla a distribuição dos multiplicadores: BelowShare das amostras
// ficam em [Min, Threshold) e o restante em [Threshold, Max].
type Skew struct {
	Min        decimal.Decimal
	Threshold  decimal.Decimal
	Max        decimal.Decimal
	BelowShare float64
}

func DefaultSkew() Skew {
	return Skew{
		Min:        decimal.RequireFromString("1.10"),
		Threshold:  decimal.RequireFromString("2.00"),
		Max:        decimal.RequireFromString("6.00"),
		BelowShare: 0.75,
	}
}

// Sample sorteia um multiplicador com duas casas decimais
func (s Skew) Sample(rng *rand.Rand) decimal.Decimal {
	lo, th, hi := cents(s.Min), cents(s.Threshold), cents(s.Max)
	if th <= lo || hi < th {
		return s.Min.Round(2)
	}
	var c int64
	if rng.Float64() < s.BelowShare {
		c = lo + rng.Int63n(th-lo)
	} else {
		c = th + rng.Int63n(hi-th+1)
	}
	return decimal.New(c, -2)
}

func cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
