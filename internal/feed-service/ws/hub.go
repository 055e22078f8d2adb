package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/color-round-platform/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// client serializa as escritas: gorilla não aceita writers concorrentes.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeRaw(b)
}

func (c *client) writeRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por stream.
// Snapshot, se definido, é enviado logo após o subscribe.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}

	Snapshot func(ctx context.Context, stream string) (any, error)
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.Stream != events.StreamRounds {
				_ = c.write(ServerMsg{Type: "error", Stream: msg.Stream, Payload: "unknown stream"})
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.Stream]; !ok {
				h.subs[msg.Stream] = make(map[*client]struct{})
			}
			h.subs[msg.Stream][c] = struct{}{}
			h.mu.Unlock()
			h.sendSnapshot(r.Context(), c, msg.Stream)
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.Stream]; ok {
				delete(m, c)
				if len(m) == 0 {
					delete(h.subs, msg.Stream)
				}
			}
			h.mu.Unlock()
		case "ping":
			_ = c.write(ServerMsg{Type: "pong"})
		}
	}
}

func (h *Hub) sendSnapshot(ctx context.Context, c *client, stream string) {
	if h.Snapshot == nil {
		return
	}
	snap, err := h.Snapshot(ctx, stream)
	if err != nil {
		h.log.Warn("ws snapshot failed", zap.String("stream", stream), zap.Error(err))
		return
	}
	if snap != nil {
		_ = c.write(ServerMsg{Type: "snapshot", Stream: stream, Payload: snap})
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for stream, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, stream)
		}
	}
}

// Subscribers retorna quantos clientes seguem o stream.
func (h *Hub) Subscribers(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[stream])
}

// Broadcast envia o update para todos os clientes inscritos no stream
func (h *Hub) Broadcast(update events.FeedUpdate) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[update.Stream]))
	for c := range h.subs[update.Stream] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Warn("ws marshal failed", zap.Error(err))
		return
	}
	for _, c := range targets {
		if err := c.writeRaw(b); err != nil {
			h.log.Debug("ws write failed, dropping client", zap.Error(err))
			h.drop(c)
			_ = c.conn.Close()
		}
	}
}
