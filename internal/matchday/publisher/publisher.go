package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/virtual-matchday/internal/shared/kafka"
	"github.com/radieske/virtual-matchday/pkg/contracts/events"
)

// TypeNewMatches é o tipo da mensagem de broadcast quando rodadas novas são liberadas
const TypeNewMatches = "new-matches"

// Broadcast é o envelope publicado no canal Redis e repassado aos clientes WS
type Broadcast struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Publisher emite os eventos de domínio do motor no Kafka e o broadcast no Redis.
// Qualquer campo nil é ignorado.
type Publisher struct {
	RoundsReleased   kafka.MessageWriter
	MatchesSettled   kafka.MessageWriter
	LedgerRejections kafka.MessageWriter
	Redis            *redis.Client
	Channel          string
}

func (p *Publisher) PublishRoundsReleased(ctx context.Context, ev events.RoundsReleased) error {
	var errs []error
	if err := p.write(ctx, p.RoundsReleased, ev.Receipt, ev); err != nil {
		errs = append(errs, fmt.Errorf("kafka rounds released: %w", err))
	}
	if p.Redis != nil && p.Channel != "" {
		b, err := json.Marshal(Broadcast{Type: TypeNewMatches, Payload: ev.Matches})
		if err == nil {
			err = p.Redis.Publish(ctx, p.Channel, b).Err()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("redis broadcast: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) PublishMatchesSettled(ctx context.Context, ev events.MatchesSettled) error {
	return p.write(ctx, p.MatchesSettled, ev.Receipt, ev)
}

func (p *Publisher) PublishLedgerRejection(ctx context.Context, ev events.LedgerRejection) error {
	return p.write(ctx, p.LedgerRejections, ev.Operation, ev)
}

func (p *Publisher) write(ctx context.Context, w kafka.MessageWriter, key string, v any) error {
	if w == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, w, key, b)
}
