package controllers

import (
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"pulseboard/internal/middleware"
	"pulseboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketController upgrades browsers onto the chart hub
type WebSocketController struct {
	hub       *services.WebSocketHub
	auth      middleware.TokenValidator
	security  *middleware.SecurityLogger
	validator *middleware.InputValidator
	upgrader  websocket.Upgrader
	nextID    atomic.Uint64
}

// NewWebSocketController creates the controller. auth may be nil, in which
// case connections are accepted without a token.
func NewWebSocketController(hub *services.WebSocketHub, auth middleware.TokenValidator, security *middleware.SecurityLogger, allowedOrigins []string) *WebSocketController {
	wc := &WebSocketController{
		hub:       hub,
		auth:      auth,
		security:  security,
		validator: middleware.NewInputValidator(),
	}
	wc.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin
			if origin == "" {
				return true
			}
			return middleware.OriginAllowed(allowedOrigins, origin)
		},
	}
	return wc
}

// HandleWebSocket handles incoming WebSocket connections
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	subscriber := "anonymous"

	if wc.auth != nil {
		token := c.Query("token")
		if token == "" {
			wc.security.LogFailedAuth(c.ClientIP(), "missing token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if !wc.validator.ValidateToken(token) {
			wc.security.LogFailedAuth(c.ClientIP(), "malformed token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, err := wc.auth.ValidateToken(token)
		if err != nil {
			wc.security.LogFailedAuth(c.ClientIP(), err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		subscriber = claims.Subscriber
		wc.security.LogWebSocketConnected(c.ClientIP(), subscriber)
	}

	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	clientID := fmt.Sprintf("%s-%s-%d", c.ClientIP(), subscriber, wc.nextID.Add(1))
	client := services.NewClientConnection(clientID, ws)

	wc.hub.Register(client)

	go wc.writePump(client)
	go wc.readPump(client, c.ClientIP())
}

// readPump reads messages from the WebSocket client
func (wc *WebSocketController) readPump(client *services.ClientConnection, ip string) {
	defer func() {
		wc.hub.Unregister(client.ID)
		client.Conn.Close()
		wc.security.LogWebSocketDisconnected(ip, client.ID)
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg services.WebSocketMessage
		err := client.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] WebSocket error: %v", err)
			}
			return
		}

		switch msg.Type {
		case services.MessagePing:
			wc.hub.SendTo(client.ID, services.WebSocketMessage{Type: services.MessagePong, Timestamp: time.Now()})

		case "unsubscribe":
			return

		default:
			log.Printf("[WS] Unknown message type from %s: %s", client.ID, msg.Type)
		}
	}
}

// writePump writes messages to the WebSocket client
func (wc *WebSocketController) writePump(client *services.ClientConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, close connection
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteJSON(msg); err != nil {
				log.Printf("[WS] Write error for %s: %v", client.ID, err)
				return
			}

		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
