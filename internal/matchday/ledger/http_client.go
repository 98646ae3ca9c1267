package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

const (
	maxRetries    = 3
	baseRetryWait = 250 * time.Millisecond
)

// envelope é o formato de resposta do gateway: {success, msg, data}
type envelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient fala com o gateway HTTP do contrato.
// Leituras têm retry com backoff; escritas são tentativa única e o próximo
// tick refaz o lote inteiro.
type HTTPClient struct {
	http     *http.Client
	base     string
	contract string
	limiter  *rate.Limiter
	log      *zap.Logger
}

func NewHTTPClient(baseURL, contract string, timeout time.Duration, log *zap.Logger) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		http:     &http.Client{Timeout: timeout},
		base:     strings.TrimRight(baseURL, "/"),
		contract: contract,
		limiter:  rate.NewLimiter(20, 10),
		log:      log,
	}
}

func (c *HTTPClient) url(path string) string {
	return c.base + "/contracts/" + url.PathEscape(c.contract) + path
}

func (c *HTTPClient) RegisterMatches(ctx context.Context, batch []MatchRegistration) (Receipt, error) {
	var rc Receipt
	err := c.post(ctx, "register_matches", c.url("/matches"), map[string]any{"matches": batch}, &rc)
	return rc, err
}

func (c *HTTPClient) RegisterScores(ctx context.Context, scores []model.MatchScore, rewards []model.Reward) (Receipt, error) {
	if rewards == nil {
		rewards = []model.Reward{}
	}
	var rc Receipt
	err := c.post(ctx, "register_scores", c.url("/scores"), map[string]any{"scores": scores, "rewards": rewards}, &rc)
	return rc, err
}

func (c *HTTPClient) GetPredictions(ctx context.Context, matchIDs []string) ([]model.Prediction, error) {
	q := url.Values{"match_ids": {strings.Join(matchIDs, ",")}}
	var out []model.Prediction
	if err := c.get(ctx, "get_predictions", c.url("/predictions?"+q.Encode()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetCurrentRound(ctx context.Context) (int64, error) {
	var out struct {
		Round int64 `json:"round"`
	}
	if err := c.get(ctx, "get_current_round", c.url("/round"), &out); err != nil {
		return 0, err
	}
	return out.Round, nil
}

func (c *HTTPClient) get(ctx context.Context, op, u string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		err = c.do(ctx, op, req, out)
		if err == nil {
			return nil
		}
		var rej *RejectionError
		if errors.As(err, &rej) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if attempt < maxRetries {
			c.log.Warn("ledger read failed, retrying", zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
			sleep(ctx, attempt)
		}
	}
	return lastErr
}

func (c *HTTPClient) post(ctx context.Context, op, u string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, op, req, out)
}

// do executa uma requisição e abre o envelope.
// 4xx ou success=false viram *RejectionError; rede e 5xx viram ErrUnavailable.
func (c *HTTPClient) do(ctx context.Context, op string, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %w", ErrUnavailable, op, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s: http %d", ErrUnavailable, op, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &RejectionError{Operation: op, Status: resp.StatusCode, Msg: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("%w: %s: decode envelope: %w", ErrUnavailable, op, err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		return &RejectionError{Operation: op, Status: resp.StatusCode, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s: decode data: %w", ErrUnavailable, op, err)
	}
	return nil
}

// sleep espera com backoff exponencial, respeitando o contexto
func sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
