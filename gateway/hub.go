package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
	"github.com/CalebLauder/rakan-backend/transport"
)

const writeWait = 5 * time.Second

// Frame is one message on the live feed. Kind is the logical address the
// payload arrived on.
type Frame struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hub fans broker traffic out to WebSocket clients. It subscribes to the
// events subject and the commands wildcard and forwards every message as
// a Frame. Slow or broken clients are dropped, never waited on.
type Hub struct {
	transport transport.Transport
	subjects  transport.Subjects
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewHub creates a hub over t.
func NewHub(t transport.Transport, subjects transport.Subjects, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default().With("component", "gateway-hub")
	}
	return &Hub{
		transport: t,
		subjects:  subjects,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is same-host with the frontend in deployments and
			// origin-agnostic in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Subscribe attaches the hub to the broker feeds. Call once after the
// transport is connected.
func (h *Hub) Subscribe(ctx context.Context) error {
	events := h.subjects.Events()
	if err := h.transport.Subscribe(ctx, events, h.forward(events)); err != nil {
		return errors.WrapTransient(err, "Hub", "Subscribe", "events feed")
	}
	commands := h.subjects.CommandsWildcard()
	if err := h.transport.Subscribe(ctx, commands, h.forward(commands)); err != nil {
		return errors.WrapTransient(err, "Hub", "Subscribe", "commands feed")
	}
	return nil
}

func (h *Hub) forward(kind string) transport.Handler {
	return func(_ context.Context, payload []byte) {
		h.Broadcast(kind, payload)
	}
}

// Broadcast sends payload to every connected client.
func (h *Hub) Broadcast(kind string, payload []byte) {
	frame, err := json.Marshal(Frame{
		Kind:      kind,
		Timestamp: timestamp.Now(),
		Payload:   json.RawMessage(payload),
	})
	if err != nil {
		h.logger.Warn("frame encode failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Debug("dropping client", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// handleWS upgrades the connection and registers the client. The read
// loop exists only to notice disconnects; inbound frames are discarded.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("client connected", "remote", conn.RemoteAddr())

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
