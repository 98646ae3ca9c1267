package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
	"github.com/radieske/virtual-matchday/internal/matchday/query"
)

// Reads é o caminho de leitura consumido pela API
type Reads interface {
	Round(ctx context.Context) (model.RoundState, error)
	GetMatches(ctx context.Context, round int64) ([]query.MatchView, error)
	GetMatchesByIDs(ctx context.Context, ids []string) ([]query.MatchView, error)
	GetMatchEvents(ctx context.Context, ids []string) ([]query.MatchEvents, error)
}

// API expõe as consultas de partidas; nunca toca no loop de reconciliação
type API struct {
	Reads Reads
	WS    http.HandlerFunc // opcional
}

// Router retorna o roteador HTTP com os endpoints REST e o WS
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/rounds/current", a.currentRound) // estado de rodadas
	r.Get("/v1/matches", a.listMatches)         // ?round=N ou ?ids=a,b
	r.Get("/v1/matches/events", a.matchEvents)  // ?ids=a,b
	r.Get("/v1/matches/{id}", a.getMatch)
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (a *API) currentRound(w http.ResponseWriter, r *http.Request) {
	st, err := a.Reads.Round(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) listMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if ids := splitIDs(q.Get("ids")); len(ids) > 0 {
		ms, err := a.Reads.GetMatchesByIDs(r.Context(), ids)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ms)
		return
	}

	var round int64
	if raw := q.Get("round"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "invalid round")
			return
		}
		round = n
	}
	ms, err := a.Reads.GetMatches(r.Context(), round)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (a *API) getMatch(w http.ResponseWriter, r *http.Request) {
	ms, err := a.Reads.GetMatchesByIDs(r.Context(), []string{chi.URLParam(r, "id")})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(ms) == 0 {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, ms[0])
}

func (a *API) matchEvents(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		writeErr(w, http.StatusBadRequest, "ids is required")
		return
	}
	evs, err := a.Reads.GetMatchEvents(r.Context(), ids)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, evs)
}
