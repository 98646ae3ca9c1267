package ws

import "encoding/json"

// ClientMsg é uma mensagem recebida do cliente WebSocket
// Type: match-events-request | ping
type ClientMsg struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids,omitempty"` // requerido em match-events-request
}

// ServerMsg é o envelope enviado aos clientes; também é o formato do canal Redis
type ServerMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	TypeEventsRequest  = "match-events-request"
	TypeEventsResponse = "match-events-response"
	TypeNewMatches     = "new-matches"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeError          = "error"
)
