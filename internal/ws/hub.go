package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/telemetry"
)

// Hub manages WebSocket connections. Registered clients join the
// publisher's broadcast set and leave it when they disconnect.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	registry   *telemetry.Registry
	sendBuffer int
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub feeding clients from registry.
func NewHub(registry *telemetry.Registry, sendBuffer int, logger *zap.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBufferSize
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		registry:   registry,
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.registry.Add(client)
			h.logger.Debug("client registered",
				zap.String("connID", client.connID),
				zap.String("protocol", client.codec.name),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.mu.Unlock()
			if ok {
				h.registry.Remove(client)
				client.close()
				h.logger.Debug("client unregistered", zap.String("connID", client.connID))
			}
		}
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.registry.Remove(client)
		client.close()
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// addClient hands client to the hub loop. It returns false once the hub stopped.
func (h *Hub) addClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) removeClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
