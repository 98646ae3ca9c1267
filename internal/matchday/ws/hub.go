package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/matchday/query"
)

// EventsReader responde match-events-request
type EventsReader interface {
	GetMatchEvents(ctx context.Context, ids []string) ([]query.MatchEvents, error)
}

// conn serializa escritas; gorilla não aceita escritores concorrentes
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Hub gerencia conexões WebSocket: responde pedidos de eventos e repassa
// o broadcast de novas rodadas para todos os clientes
type Hub struct {
	upgrader websocket.Upgrader
	reads    EventsReader
	log      *zap.Logger

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(reads EventsReader, allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		reads:    reads,
		log:      log,
		conns:    make(map[*conn]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		ws.Close()
	}()

	for {
		var msg ClientMsg
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case TypeEventsRequest:
			h.answerEvents(r.Context(), c, msg.IDs)
		case TypePing:
			_ = c.write(mustMsg(TypePong, nil))
		}
	}
}

func (h *Hub) answerEvents(ctx context.Context, c *conn, ids []string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	evs, err := h.reads.GetMatchEvents(ctx, ids)
	if err != nil {
		h.log.Warn("match events request failed", zap.Error(err))
		_ = c.write(mustMsg(TypeError, map[string]string{"error": "events unavailable"}))
		return
	}
	_ = c.write(mustMsg(TypeEventsResponse, evs))
}

// Broadcast envia a mensagem para todas as conexões abertas
func (h *Hub) Broadcast(msg ServerMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.write(b)
	}
}

// Clients retorna o número de conexões abertas
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func mustMsg(typ string, payload any) []byte {
	m := ServerMsg{Type: typ}
	if payload != nil {
		m.Payload, _ = json.Marshal(payload)
	}
	b, _ := json.Marshal(m)
	return b
}
