package query

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
)

// Reader é a parte de leitura do store usada pela API
type Reader interface {
	FindMatches(ctx context.Context, f repo.Filter) ([]model.Match, error)
	RoundState(ctx context.Context) (model.RoundState, error)
}

// Cache é opcional; erros de cache nunca derrubam uma leitura.
// Generation é lido uma vez por leitura e prefixa as chaves do Get e do Set.
type Cache interface {
	Generation(ctx context.Context) (string, error)
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// MatchView é a partida como a API entrega; placar e eventos ficam ocultos
// até o fim do roteiro
type MatchView struct {
	ID          string        `json:"id"`
	Round       int64         `json:"round"`
	ScheduledAt int64         `json:"scheduled_at"` // epoch ms
	Settled     bool          `json:"settled"`
	Kind        model.Kind    `json:"kind"`
	Payload     model.Payload `json:"payload"`
}

// MatchEvents é o roteiro jogado até agora de uma partida em andamento
type MatchEvents struct {
	MatchID  string        `json:"match_id"`
	Elapsed  int           `json:"elapsed"`
	Finished bool          `json:"finished"`
	Score    model.Score   `json:"score"`
	Events   []model.Event `json:"events"`
}

type Service struct {
	store Reader
	cache Cache
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Service)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) { s.cache, s.ttl = c, ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Reader, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{store: store, ttl: 10 * time.Second, now: time.Now, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Round devolve o estado de rodadas derivado do store
func (s *Service) Round(ctx context.Context) (model.RoundState, error) {
	return s.store.RoundState(ctx)
}

// GetMatches lista as partidas de uma rodada; round <= 0 usa a rodada corrente
func (s *Service) GetMatches(ctx context.Context, round int64) ([]MatchView, error) {
	if round <= 0 {
		st, err := s.store.RoundState(ctx)
		if err != nil {
			return nil, err
		}
		if st.Empty {
			return []MatchView{}, nil
		}
		round = st.Current
	}

	ms, err := s.cached(ctx, "round:"+strconv.FormatInt(round, 10), func() ([]model.Match, error) {
		return s.find(ctx, repo.Filter{Round: &round, Kind: model.KindVirtual})
	})
	if err != nil {
		return nil, err
	}
	return s.views(ms), nil
}

func (s *Service) GetMatchesByIDs(ctx context.Context, ids []string) ([]MatchView, error) {
	ids = normalize(ids)
	if len(ids) == 0 {
		return []MatchView{}, nil
	}
	ms, err := s.cached(ctx, "ids:"+strings.Join(ids, ","), func() ([]model.Match, error) {
		return s.find(ctx, repo.Filter{IDs: ids})
	})
	if err != nil {
		return nil, err
	}
	return s.views(ms), nil
}

// GetMatchEvents devolve os eventos já jogados das partidas que começaram
func (s *Service) GetMatchEvents(ctx context.Context, ids []string) ([]MatchEvents, error) {
	ids = normalize(ids)
	if len(ids) == 0 {
		return []MatchEvents{}, nil
	}
	ms, err := s.cached(ctx, "ids:"+strings.Join(ids, ","), func() ([]model.Match, error) {
		return s.find(ctx, repo.Filter{IDs: ids})
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]MatchEvents, 0, len(ms))
	for _, m := range ms {
		if !m.Started(now) {
			continue
		}
		elapsed := m.Elapsed(now)
		evs := model.EventsUntil(m.Payload.Events, elapsed)
		out = append(out, MatchEvents{
			MatchID:  m.ID,
			Elapsed:  elapsed,
			Finished: m.Finished(now),
			Score:    model.GoalsFrom(evs),
			Events:   evs,
		})
	}
	return out, nil
}

func (s *Service) cached(ctx context.Context, key string, load func() ([]model.Match, error)) ([]model.Match, error) {
	full := ""
	if s.cache != nil {
		gen, err := s.cache.Generation(ctx)
		if err != nil {
			s.log.Warn("cache generation read failed", zap.Error(err))
		} else {
			full = gen + ":" + key
		}
	}
	if full != "" {
		var ms []model.Match
		ok, err := s.cache.Get(ctx, full, &ms)
		if err != nil {
			s.log.Warn("cache read failed", zap.String("key", full), zap.Error(err))
		} else if ok {
			return ms, nil
		}
	}

	ms, err := load()
	if err != nil {
		return nil, err
	}
	if full != "" {
		if err := s.cache.Set(ctx, full, ms, s.ttl); err != nil {
			s.log.Warn("cache write failed", zap.String("key", full), zap.Error(err))
		}
	}
	return ms, nil
}

// find tolera linhas ilegíveis: elas são logadas e ficam de fora da resposta
func (s *Service) find(ctx context.Context, f repo.Filter) ([]model.Match, error) {
	ms, err := s.store.FindMatches(ctx, f)
	var bad *repo.DecodeError
	if errors.As(err, &bad) {
		s.log.Error("skipping undecodable matches", zap.Strings("ids", bad.IDs), zap.Error(err))
		return ms, nil
	}
	return ms, err
}

func (s *Service) views(ms []model.Match) []MatchView {
	now := s.now()
	out := make([]MatchView, 0, len(ms))
	for _, m := range ms {
		p := m.Payload
		if !m.Finished(now) {
			p.Score = nil
			p.Events = nil
		}
		out = append(out, MatchView{
			ID:          m.ID,
			Round:       m.Round,
			ScheduledAt: m.ScheduledAt.UnixMilli(),
			Settled:     m.Settled,
			Kind:        m.Kind,
			Payload:     p,
		})
	}
	return out
}

// normalize remove vazios e duplicados e ordena, para a chave de cache ser estável
func normalize(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
