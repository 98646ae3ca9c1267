package repo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

// matchRow é a linha persistida; o payload só existe codificado aqui
type matchRow struct {
	ID          string `db:"id"`
	Round       int64  `db:"round"`
	ScheduledAt int64  `db:"scheduled_at"`
	Settled     bool   `db:"settled"`
	Kind        string `db:"kind"`
	Payload     string `db:"payload"`
}

func encode(m model.Match) (matchRow, error) {
	b, err := json.Marshal(m.Payload)
	if err != nil {
		return matchRow{}, fmt.Errorf("encode payload %s: %w", m.ID, err)
	}
	kind := m.Kind
	if kind == "" {
		kind = model.KindVirtual
	}
	return matchRow{
		ID:          m.ID,
		Round:       m.Round,
		ScheduledAt: m.ScheduledAt.UnixMilli(),
		Settled:     m.Settled,
		Kind:        string(kind),
		Payload:     string(b),
	}, nil
}

func (r matchRow) decode() (model.Match, error) {
	m := model.Match{
		ID:          r.ID,
		Round:       r.Round,
		ScheduledAt: model.MsToTime(r.ScheduledAt),
		Settled:     r.Settled,
		Kind:        model.Kind(r.Kind),
	}
	if err := json.Unmarshal([]byte(r.Payload), &m.Payload); err != nil {
		return model.Match{}, fmt.Errorf("decode payload %s: %w", r.ID, err)
	}
	return m, nil
}

// Filter seleciona partidas; campos zerados não filtram
type Filter struct {
	IDs             []string
	Settled         *bool
	Kind            model.Kind
	Round           *int64
	ScheduledBefore time.Time // scheduled_at <= ScheduledBefore
	ScheduledAfter  time.Time // scheduled_at >= ScheduledAfter
	Limit           int
}

func (f Filter) empty() bool {
	return len(f.IDs) == 0 && f.Settled == nil && f.Kind == "" && f.Round == nil &&
		f.ScheduledBefore.IsZero() && f.ScheduledAfter.IsZero()
}

// Update descreve a mudança de uma partida. O placar de partida virtual é imutável.
type Update struct {
	Settled *bool
	Payload *model.Payload
}

func Bool(b bool) *bool { return &b }
