// Package websocket is the chat bridge: a game-side bridge process
// connects and relays in-game chat lines, and gets reply and broadcast
// text back to feed into server chat. Command registration and chat
// broadcasting on the game side stay the bridge's problem.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/blockstats-server/internal/domain"
)

// Message types
const (
	MessageTypeChat              = "chat"
	MessageTypeReply             = "reply"
	MessageTypeBroadcast         = "broadcast"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Lines     []string    `json:"lines,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// LeaderboardUpdate is pushed to all bridges after a scan changed data.
type LeaderboardUpdate struct {
	Metric  domain.Metric             `json:"metric"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// Hub maintains the set of connected bridges and broadcasts messages
type Hub struct {
	// All connected clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages for every client
	broadcast chan *Message

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("chat bridge hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("chat bridge hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("bridge connected", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Debug("bridge disconnected", "client_id", client.id)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Stop shuts down the hub and disconnects all bridges.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// BroadcastLines sends chat lines to every connected bridge.
func (h *Hub) BroadcastLines(lines []string) {
	if len(lines) == 0 {
		return
	}
	h.Broadcast(&Message{
		Type:      MessageTypeBroadcast,
		Lines:     lines,
		Timestamp: time.Now(),
	})
}

// BroadcastLeaderboard pushes fresh leaderboard data to every bridge.
func (h *Hub) BroadcastLeaderboard(metric domain.Metric, entries []domain.LeaderboardEntry) {
	h.Broadcast(&Message{
		Type:      MessageTypeLeaderboardUpdate,
		Data:      LeaderboardUpdate{Metric: metric, Entries: entries},
		Timestamp: time.Now(),
	})
}

// Broadcast queues a message for every connected bridge.
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// deliver fans a message out to all clients.
func (h *Hub) deliver(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.enqueue(data) {
			// Slow or closed consumer; drop rather than block the hub.
			h.logger.Warn("dropping message for bridge", "client_id", client.id)
		}
	}
}

// GetTotalConnections returns the number of connected bridges.
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
