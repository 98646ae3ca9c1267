package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

var ErrNotFound = errors.New("fixture not found")

// Fixture é o registro mínimo de uma partida real; Score só vem depois do apito final
type Fixture struct {
	ID      string
	Kickoff time.Time
	HomeID  string
	AwayID  string
	Score   *model.Score
}

// Source entrega fixtures de partidas ao vivo (não virtuais)
type Source interface {
	Fixture(ctx context.Context, id string) (Fixture, error)
}

// status de api-football que significam partida encerrada
var finished = map[string]bool{"FT": true, "AET": true, "PEN": true}

// HTTPSource lê fixtures de uma API no formato da api-football
type HTTPSource struct {
	base    string
	host    string
	key     string
	http    *http.Client
	limiter *rate.Limiter
}

func NewHTTPSource(baseURL, apiKey string) *HTTPSource {
	base := strings.TrimRight(baseURL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u, _ := url.Parse(base)
	host := ""
	if u != nil {
		host = u.Host
	}
	return &HTTPSource{
		base:    base,
		host:    host,
		key:     apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(5, 5),
	}
}

type apiResponse struct {
	Response []struct {
		Fixture struct {
			ID     int64  `json:"id"`
			Date   string `json:"date"`
			Status struct {
				Short string `json:"short"`
			} `json:"status"`
		} `json:"fixture"`
		Teams struct {
			Home struct {
				ID int64 `json:"id"`
			} `json:"home"`
			Away struct {
				ID int64 `json:"id"`
			} `json:"away"`
		} `json:"teams"`
		Goals struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		} `json:"goals"`
	} `json:"response"`
}

func (s *HTTPSource) Fixture(ctx context.Context, id string) (Fixture, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Fixture{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/fixtures?"+url.Values{"id": {id}}.Encode(), nil)
	if err != nil {
		return Fixture{}, err
	}
	req.Header.Set("x-rapidapi-host", s.host)
	req.Header.Set("x-rapidapi-key", s.key)

	res, err := s.http.Do(req)
	if err != nil {
		return Fixture{}, fmt.Errorf("fixture %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return Fixture{}, fmt.Errorf("fixture %s: http %d", id, res.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return Fixture{}, fmt.Errorf("fixture %s: decode: %w", id, err)
	}
	for _, r := range body.Response {
		if strconv.FormatInt(r.Fixture.ID, 10) != id {
			continue
		}
		f := Fixture{
			ID:     id,
			HomeID: strconv.FormatInt(r.Teams.Home.ID, 10),
			AwayID: strconv.FormatInt(r.Teams.Away.ID, 10),
		}
		if t, err := time.Parse(time.RFC3339, r.Fixture.Date); err == nil {
			f.Kickoff = t
		}
		if finished[r.Fixture.Status.Short] && r.Goals.Home != nil && r.Goals.Away != nil {
			f.Score = &model.Score{Home: *r.Goals.Home, Away: *r.Goals.Away}
		}
		return f, nil
	}
	return Fixture{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}
