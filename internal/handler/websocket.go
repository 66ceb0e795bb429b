package handler

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/omitech/livetalk/internal/config"
	"github.com/omitech/livetalk/internal/hub"
)

// WebSocketHandler upgrades participant connections and hands them to the hub.
type WebSocketHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cfg *config.Config, h *hub.Hub) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(cfg.HTTP.AllowedOrigins) == 0 {
				return true
			}
			for _, allowed := range cfg.HTTP.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	return &WebSocketHandler{hub: h, upgrader: upgrader}
}

// ServeHTTP handles HTTP requests for WebSocket connections
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("handler: failed to upgrade connection: %v", err)
		return
	}
	h.hub.Attach(conn)
}
