// Package routes wires controllers onto gin engines.
package routes

import (
	"pulseboard/internal/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterWebSocketRoutes registers the chart subscription endpoint.
// Tokens are issued by the CLI only; there is no HTTP endpoint for them.
func RegisterWebSocketRoutes(r *gin.Engine, wc *controllers.WebSocketController) {
	r.GET("/ws", wc.HandleWebSocket)
}
