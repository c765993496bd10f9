package services

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulseboard/internal/models"
)

// WebSocket message types
const (
	MessageSeries     = "series"
	MessageProportion = "proportion"
	MessageStatus     = "status"
	MessagePing       = "ping"
	MessagePong       = "pong"
	MessageError      = "error"
)

// replayOrder is the order in which a new client receives the last known state
var replayOrder = []string{MessageSeries, MessageProportion, MessageStatus}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"` // "series", "proportion", "status", "ping", "pong", "error"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ClientConnection represents a connected WebSocket client
type ClientConnection struct {
	ID   string
	Conn *websocket.Conn
	Send chan WebSocketMessage
}

// NewClientConnection wraps conn with a buffered send queue
func NewClientConnection(id string, conn *websocket.Conn) *ClientConnection {
	return &ClientConnection{
		ID:   id,
		Conn: conn,
		Send: make(chan WebSocketMessage, 256),
	}
}

// WebSocketHub fans chart updates out to connected browsers. It implements
// ChartSink and StatusSink, and replays the latest state to each new client.
type WebSocketHub struct {
	clients    map[string]*ClientConnection
	broadcast  chan WebSocketMessage
	register   chan *ClientConnection
	unregister chan string
	mu         sync.RWMutex
	last       map[string]WebSocketMessage
	done       chan struct{}
	stopOnce   sync.Once
	telemetry  *Telemetry
}

// NewWebSocketHub creates the hub and starts its event loop
func NewWebSocketHub(telemetry *Telemetry) *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[string]*ClientConnection),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *ClientConnection),
		unregister: make(chan string),
		last:       make(map[string]WebSocketMessage),
		done:       make(chan struct{}),
		telemetry:  telemetry,
	}

	go h.run()

	return h
}

// run manages the hub's event loop
func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			h.telemetry.SetSubscribers(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			for _, kind := range replayOrder {
				if msg, ok := h.last[kind]; ok {
					trySend(client, msg)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.telemetry.SetSubscribers(total)
			log.Printf("[WS] Client connected: %s (total: %d)", client.ID, total)

		case clientID := <-h.unregister:
			h.mu.Lock()
			if client, exists := h.clients[clientID]; exists {
				delete(h.clients, clientID)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.telemetry.SetSubscribers(total)
			log.Printf("[WS] Client disconnected: %s (total: %d)", clientID, total)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				if !trySend(client, msg) {
					log.Printf("[WS] Send queue full for %s, dropping %s update", client.ID, msg.Type)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func trySend(client *ClientConnection, msg WebSocketMessage) bool {
	select {
	case client.Send <- msg:
		return true
	default:
		return false
	}
}

// Register adds a new client to the hub
func (h *WebSocketHub) Register(client *ClientConnection) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client from the hub
func (h *WebSocketHub) Unregister(clientID string) {
	select {
	case h.unregister <- clientID:
	case <-h.done:
	}
}

// Broadcast records msg as the latest of its type and queues it for every client.
// It never blocks; when the queue is full the update is dropped, but the
// replay state still reflects it.
func (h *WebSocketHub) Broadcast(msg WebSocketMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	h.mu.Lock()
	h.last[msg.Type] = msg
	h.mu.Unlock()

	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		log.Printf("[WS] Broadcast queue full, dropping %s update", msg.Type)
	}
}

// SendTo queues msg for a single client. It reports false when the client is
// unknown or its queue is full.
func (h *WebSocketHub) SendTo(clientID string, msg WebSocketMessage) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[clientID]
	if !exists {
		return false
	}
	return trySend(client, msg)
}

// RenderSeries implements ChartSink
func (h *WebSocketHub) RenderSeries(snapshot models.SeriesSnapshot) {
	h.Broadcast(WebSocketMessage{Type: MessageSeries, Data: snapshot})
}

// RenderProportion implements ChartSink
func (h *WebSocketHub) RenderProportion(usedPercent float64) {
	h.Broadcast(WebSocketMessage{Type: MessageProportion, Data: models.NewProportion(usedPercent)})
}

// RenderStatus implements StatusSink
func (h *WebSocketHub) RenderStatus(status models.RefreshStatus) {
	h.Broadcast(WebSocketMessage{Type: MessageStatus, Data: status})
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Last returns the most recent message of the given type
func (h *WebSocketHub) Last(kind string) (WebSocketMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msg, ok := h.last[kind]
	return msg, ok
}

// Stop disconnects every client and ends the event loop
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}
