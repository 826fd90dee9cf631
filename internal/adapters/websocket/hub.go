package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

// Event types pushed to clients
const (
	EventConnected        = "connection_established"
	EventStoreChanged     = "store_changed"
	EventCleanupCompleted = "cleanup_completed"
	EventPong             = "pong"
	EventSubscribed       = "subscribed"
)

// Event represents a real-time event to be broadcast
type Event struct {
	Type      string    `json:"type"`
	Store     string    `json:"store,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client represents a WebSocket client connection. An empty store filter
// receives every store.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan Event
	Hub  *Hub

	mu     sync.RWMutex
	stores map[string]bool
}

// wants reports whether the client is subscribed to event's store
func (c *Client) wants(event Event) bool {
	if event.Store == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stores) == 0 || c.stores[event.Store]
}

func (c *Client) setStores(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores = make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			c.stores[n] = true
		}
	}
}

// Hub manages WebSocket connections and broadcasts state changes to UI
// windows
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logutil.FieldLogger
	upgrader   websocket.Upgrader
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logutil.Logger) *Hub {
	if logger == nil {
		logger = logutil.Global()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, constants.WebSocketSendBuffer),
		done:       make(chan struct{}),
		logger:     logger.WithFields(logutil.Fields{"component": "websocket"}),
		upgrader: websocket.Upgrader{
			// The server binds to loopback; UI windows load from file:// origins
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			h.logger.Debug("WebSocket client connected", logutil.Fields{"client_id": client.ID})

			select {
			case client.Send <- Event{
				Type:      EventConnected,
				Data:      map[string]string{"client_id": client.ID},
				Timestamp: time.Now(),
			}:
			default:
				h.unregisterClient(client)
			}

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			close(h.done)
			h.closeAll()
			return
		}
	}
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		h.logger.Debug("WebSocket client disconnected", logutil.Fields{"client_id": client.ID})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

// broadcastEvent sends an event to every subscribed client, dropping
// clients whose buffers are full
func (h *Hub) broadcastEvent(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.Send <- event:
		default:
			h.logger.Warn("Dropping slow WebSocket client", logutil.Fields{"client_id": client.ID})
			h.removeLocked(client)
		}
	}
}

// Broadcast queues an event for all connected clients. It never blocks;
// events are dropped when the queue is full.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast queue full, event dropped", logutil.Fields{"type": event.Type, "store": event.Store})
	}
}

// PublishStoreChange pushes a store's new state to subscribed clients
func (h *Hub) PublishStoreChange(storeName string, state any) {
	h.Broadcast(Event{Type: EventStoreChanged, Store: storeName, Data: state})
}

// PublishCleanup tells every client that a cleanup pass finished
func (h *Hub) PublishCleanup(trigger string, result store.CleanupResult) {
	h.Broadcast(Event{
		Type: EventCleanupCompleted,
		Data: map[string]any{"trigger": trigger, "result": result},
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats returns connection statistics
func (h *Hub) GetStats() map[string]any {
	return map[string]any{
		"total_connections": h.ClientCount(),
		"timestamp":         time.Now(),
	}
}

// HandleWebSocket handles WebSocket upgrade requests. The optional stores
// query parameter is a comma-separated store filter.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", logutil.Fields{"error": err})
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan Event, constants.WebSocketSendBuffer),
		Hub:  h,
	}
	if stores := c.Query("stores"); stores != "" {
		client.setStores(strings.Split(stores, ","))
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket read error", logutil.Fields{"client_id": c.ID, "error": err})
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(msg)
		}
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientMessage is a control message sent by a UI window
type clientMessage struct {
	Type   string   `json:"type"`
	Stores []string `json:"stores,omitempty"`
}

// handleMessage processes incoming messages from clients. Replies go through
// the hub so a closed Send channel is never written.
func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "ping":
		c.Hub.reply(c, Event{Type: EventPong, Data: map[string]string{"client_id": c.ID}})

	case "subscribe":
		c.setStores(msg.Stores)
		c.Hub.reply(c, Event{Type: EventSubscribed, Data: msg.Stores})
	}
}

func (h *Hub) reply(client *Client, event Event) {
	event.Timestamp = time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.Send <- event:
	default:
		h.removeLocked(client)
	}
}
