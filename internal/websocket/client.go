package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/blockstats-server/internal/command"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The bridge runs next to the game server; allow all origins.
		return true
	},
}

// CommandDispatcher executes chat command lines relayed by a bridge.
type CommandDispatcher interface {
	Handles(line string) bool
	Dispatch(ctx context.Context, line string) command.Result
}

// Client represents one connected chat bridge
type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	dispatcher CommandDispatcher
	send       chan []byte
	logger     *slog.Logger

	// mu guards closed so nothing writes to send after the hub closed it.
	mu     sync.Mutex
	closed bool
}

// ClientMessage represents a message from the bridge
type ClientMessage struct {
	Type   string `json:"type"`
	Player string `json:"player,omitempty"`
	Line   string `json:"line,omitempty"`
}

// NewClient creates a new bridge client
func NewClient(hub *Hub, conn *websocket.Conn, dispatcher CommandDispatcher, logger *slog.Logger) *Client {
	return &Client{
		id:         uuid.New().String(),
		hub:        hub,
		conn:       conn,
		dispatcher: dispatcher,
		send:       make(chan []byte, 256),
		logger:     logger,
	}
}

// ServeWs upgrades an HTTP request into a bridge connection.
func ServeWs(hub *Hub, dispatcher CommandDispatcher, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, dispatcher, logger)
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the WebSocket connection to the dispatcher
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage processes incoming bridge messages
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeChat:
		if !c.dispatcher.Handles(msg.Line) {
			return
		}
		c.logger.Debug("dispatching chat command", "player", msg.Player, "line", msg.Line)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result := c.dispatcher.Dispatch(ctx, msg.Line)
		cancel()

		c.sendLines(MessageTypeReply, result.Replies)
		c.hub.BroadcastLines(result.Broadcasts)

	case MessageTypePing:
		c.sendPong()

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendLines queues a message with the given lines for this bridge only.
func (c *Client) sendLines(messageType string, lines []string) {
	if len(lines) == 0 {
		return
	}
	c.sendMessage(&Message{
		Type:      messageType,
		Lines:     lines,
		Timestamp: time.Now(),
	})
}

func (c *Client) sendPong() {
	c.sendMessage(&Message{
		Type:      MessageTypePong,
		Timestamp: time.Now(),
	})
}

func (c *Client) sendError(text string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Lines:     []string{text},
		Timestamp: time.Now(),
	})
}

func (c *Client) sendMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	if !c.enqueue(data) {
		c.logger.Warn("client closed or send buffer full, dropping message", "client_id", c.id)
	}
}

// enqueue queues raw bytes for the write pump. Reports false when the
// client is already closed or its buffer is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Only the hub calls
// this, on the unregister and shutdown paths.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
