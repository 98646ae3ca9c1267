package model

import (
	"time"
)

// Kind diferencia partidas geradas pelo motor das partidas reais (fixture externa)
type Kind string

const (
	KindVirtual Kind = "VIRTUAL"
	KindLive    Kind = "LIVE"
)

// Match é a partida como o motor a enxerga: payload sempre decodificado
type Match struct {
	ID          string    `json:"id"`
	Round       int64     `json:"round"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Settled     bool      `json:"settled"`
	Kind        Kind      `json:"kind"`
	Payload     Payload   `json:"payload"`
}

// Payload guarda metadados da fixture, times, roteiro, placar e tabela de odds
type Payload struct {
	Fixture Fixture   `json:"fixture"`
	League  League    `json:"league"`
	Teams   Teams     `json:"teams"`
	Score   *Score    `json:"score,omitempty"`
	Events  []Event   `json:"events,omitempty"`
	Odds    OddsTable `json:"odds"`
}

type Fixture struct {
	ID       string `json:"id"`
	Date     int64  `json:"date"`     // epoch ms
	Duration int    `json:"duration"` // segundos
}

type League struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Teams struct {
	Home Team `json:"home"`
	Away Team `json:"away"`
}

// Duration retorna a duração da partida declarada no payload
func (m Match) Duration() time.Duration {
	return time.Duration(m.Payload.Fixture.Duration) * time.Second
}

// EndsAt é o instante em que o roteiro termina (kickoff + duração)
func (m Match) EndsAt() time.Time {
	return m.ScheduledAt.Add(m.Duration())
}

// Started indica se o kickoff já passou em now
func (m Match) Started(now time.Time) bool {
	return !now.Before(m.ScheduledAt)
}

// Finished indica se a partida já foi totalmente "jogada" em now
func (m Match) Finished(now time.Time) bool {
	return !now.Before(m.EndsAt())
}

// Elapsed retorna os segundos de jogo decorridos em now, limitados a [0, duração]
func (m Match) Elapsed(now time.Time) int {
	if !m.Started(now) {
		return 0
	}
	s := int(now.Sub(m.ScheduledAt) / time.Second)
	if s > m.Payload.Fixture.Duration {
		return m.Payload.Fixture.Duration
	}
	return s
}

// MsToTime converte epoch ms para time.Time em UTC
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// RoundState é derivado das partidas persistidas; nunca é armazenado
type RoundState struct {
	Current  int64 `json:"current"`
	Frontier int64 `json:"frontier"`
	// Empty indica que não havia partida virtual no store e Frontier veio do ledger
	Empty bool `json:"empty"`
}

// Buffer é quantas rodadas existem à frente da rodada corrente
func (s RoundState) Buffer() int64 {
	return s.Frontier - s.Current
}
