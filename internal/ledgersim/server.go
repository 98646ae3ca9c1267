package ledgersim

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

// Requests conta as chamadas atendidas por operação e resultado
var Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_sim_requests_total",
	Help: "Chamadas atendidas pelo simulador de ledger",
}, []string{"op", "result"})

type Config struct {
	Contract      string
	RejectPercent int // chance de rejeitar uma escrita válida
	Bettors       int // previsões sintéticas por partida
}

type scoreEntry struct {
	Score   model.MatchScore
	Rewards []model.Reward
}

// Server simula o gateway HTTP do contrato: guarda partidas, placares e
// previsões em memória e responde no envelope {success, msg, data}
type Server struct {
	cfg Config
	log *zap.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	matches     map[string]ledger.MatchRegistration
	scores      map[string]scoreEntry
	predictions map[string][]model.Prediction
	round       int64
}

func New(cfg Config, rng *rand.Rand, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Bettors <= 0 {
		cfg.Bettors = 5
	}
	return &Server{
		cfg:         cfg,
		log:         log,
		rng:         rng,
		matches:     make(map[string]ledger.MatchRegistration),
		scores:      make(map[string]scoreEntry),
		predictions: make(map[string][]model.Prediction),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/contracts/{contract}", func(r chi.Router) {
		r.Use(s.contractOnly)
		r.Post("/matches", s.registerMatches)
		r.Post("/scores", s.registerScores)
		r.Get("/predictions", s.getPredictions)
		r.Get("/round", s.getRound)
	})
	return r
}

func (s *Server) contractOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Contract != "" && chi.URLParam(r, "contract") != s.cfg.Contract {
			reply(w, http.StatusNotFound, false, "unknown contract", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Data    any    `json:"data,omitempty"`
}

func reply(w http.ResponseWriter, status int, ok bool, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: ok, Msg: msg, Data: data})
}

// reject responde 200 com success=false, como o gateway faz em reverts do contrato
func (s *Server) reject(w http.ResponseWriter, op, msg string) {
	Requests.WithLabelValues(op, "rejected").Inc()
	s.log.Info("ledger call rejected", zap.String("op", op), zap.String("reason", msg))
	reply(w, http.StatusOK, false, msg, nil)
}

// chaos sorteia uma rejeição; chamado com mu travado
func (s *Server) chaos() bool {
	return s.cfg.RejectPercent > 0 && s.rng.Intn(100) < s.cfg.RejectPercent
}

func (s *Server) receipt(op string) ledger.Receipt {
	Requests.WithLabelValues(op, "ok").Inc()
	return ledger.Receipt{TxHash: "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")}
}

func (s *Server) registerMatches(w http.ResponseWriter, r *http.Request) {
	const op = "register_matches"
	var req struct {
		Matches []ledger.MatchRegistration `json:"matches"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, false, "bad request", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chaos() {
		s.reject(w, op, "simulated revert")
		return
	}
	for _, m := range req.Matches {
		if prev, ok := s.matches[m.ID]; ok && !sameRegistration(prev, m) {
			s.reject(w, op, fmt.Sprintf("match %s already registered with different data", m.ID))
			return
		}
		if len(m.Odds) == 0 {
			s.reject(w, op, fmt.Sprintf("match %s has no odds", m.ID))
			return
		}
	}
	for _, m := range req.Matches {
		if _, ok := s.matches[m.ID]; ok {
			continue
		}
		s.matches[m.ID] = m
		s.predictions[m.ID] = s.synthesize(m)
		if m.Round > s.round {
			s.round = m.Round
		}
	}
	reply(w, http.StatusOK, true, "", s.receipt(op))
}

func (s *Server) registerScores(w http.ResponseWriter, r *http.Request) {
	const op = "register_scores"
	var req struct {
		Scores  []model.MatchScore `json:"scores"`
		Rewards []model.Reward     `json:"rewards"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, false, "bad request", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chaos() {
		s.reject(w, op, "simulated revert")
		return
	}
	byMatch := make(map[string][]model.Reward)
	for _, rw := range req.Rewards {
		byMatch[rw.MatchID] = append(byMatch[rw.MatchID], rw)
	}
	for _, sc := range req.Scores {
		if _, ok := s.matches[sc.MatchID]; !ok {
			s.reject(w, op, fmt.Sprintf("match %s not registered", sc.MatchID))
			return
		}
		// reenvio do mesmo placar é aceito; placar diferente não
		if prev, ok := s.scores[sc.MatchID]; ok && prev.Score != sc {
			s.reject(w, op, fmt.Sprintf("match %s already settled", sc.MatchID))
			return
		}
	}
	for rid := range byMatch {
		if _, ok := s.matches[rid]; !ok {
			s.reject(w, op, fmt.Sprintf("reward for unknown match %s", rid))
			return
		}
	}
	for _, sc := range req.Scores {
		if _, ok := s.scores[sc.MatchID]; ok {
			continue
		}
		s.scores[sc.MatchID] = scoreEntry{Score: sc, Rewards: byMatch[sc.MatchID]}
	}
	reply(w, http.StatusOK, true, "", s.receipt(op))
}

func (s *Server) getPredictions(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("match_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	s.mu.Lock()
	out := []model.Prediction{}
	for _, id := range ids {
		out = append(out, s.predictions[id]...)
	}
	s.mu.Unlock()

	Requests.WithLabelValues("get_predictions", "ok").Inc()
	reply(w, http.StatusOK, true, "", out)
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	round := s.round
	s.mu.Unlock()

	Requests.WithLabelValues("get_current_round", "ok").Inc()
	reply(w, http.StatusOK, true, "", map[string]int64{"round": round})
}

// Settled devolve o placar e os prêmios registrados para uma partida
func (s *Server) Settled(matchID string) (model.MatchScore, []model.Reward, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.scores[matchID]
	return e.Score, e.Rewards, ok
}

// synthesize cria previsões determinísticas a partir do id da partida
func (s *Server) synthesize(m ledger.MatchRegistration) []model.Prediction {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.ID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	odds := append([]ledger.RegisteredOdd(nil), m.Odds...)
	sort.Slice(odds, func(i, j int) bool { return odds[i].Path < odds[j].Path })

	out := make([]model.Prediction, 0, s.cfg.Bettors)
	for i := 0; i < s.cfg.Bettors; i++ {
		o := odds[rng.Intn(len(odds))]
		stake := decimal.New(int64(100+rng.Intn(4901)), -2) // 1.00 a 50.00
		out = append(out, model.Prediction{
			Bettor:   fmt.Sprintf("bettor-%02d", i+1),
			MatchID:  m.ID,
			Category: model.Category(o.Path),
			Stake:    model.AmountFromDecimal(stake, 2),
			OddsID:   o.ID,
		})
	}
	return out
}

func sameRegistration(a, b ledger.MatchRegistration) bool {
	if a.Round != b.Round || a.Timestamp != b.Timestamp || len(a.Odds) != len(b.Odds) {
		return false
	}
	for i := range a.Odds {
		if a.Odds[i] != b.Odds[i] {
			return false
		}
	}
	return true
}
