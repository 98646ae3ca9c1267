package model

import "strconv"

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

func (s Score) String() string {
	return strconv.Itoa(s.Home) + "-" + strconv.Itoa(s.Away)
}

// MatchScore é o placar final de uma partida enviado ao ledger
type MatchScore struct {
	MatchID string `json:"match_id"`
	Home    int    `json:"home"`
	Away    int    `json:"away"`
}

type Side string

const (
	SideNone Side = ""
	SideHome Side = "home"
	SideAway Side = "away"
)

// Opponent retorna o outro lado; SideNone para eventos neutros
func (s Side) Opponent() Side {
	switch s {
	case SideHome:
		return SideAway
	case SideAway:
		return SideHome
	}
	return SideNone
}

type EventType string

const (
	EventKickoff  EventType = "kickoff"
	EventMove     EventType = "move"
	EventShot     EventType = "shot"
	EventSave     EventType = "save"
	EventGoal     EventType = "goal"
	EventHalftime EventType = "halftime"
	EventFulltime EventType = "fulltime"
)

// Event é um passo do roteiro. At em segundos desde o kickoff; X e Y são a
// posição da bola em percentual do campo (X=100 é o gol defendido pelo visitante).
type Event struct {
	At   int       `json:"at"`
	Type EventType `json:"type"`
	Side Side      `json:"side,omitempty"`
	Seq  int       `json:"seq,omitempty"` // sequência de gol (1..n); 0 para eventos avulsos
	X    int       `json:"x"`
	Y    int       `json:"y"`
}

// EventsUntil devolve o prefixo do roteiro já jogado até elapsed segundos
func EventsUntil(events []Event, elapsed int) []Event {
	n := 0
	for n < len(events) && events[n].At <= elapsed {
		n++
	}
	return events[:n:n]
}

// GoalsFrom soma os gols atribuídos a cada lado
func GoalsFrom(events []Event) Score {
	var s Score
	for _, e := range events {
		if e.Type != EventGoal {
			continue
		}
		switch e.Side {
		case SideHome:
			s.Home++
		case SideAway:
			s.Away++
		}
	}
	return s
}
