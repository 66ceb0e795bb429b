// Package handler wires the relay's HTTP surface: the WebSocket upgrade
// endpoint, health and status checks, and the metrics endpoint.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/omitech/livetalk/internal/metrics"
	"github.com/omitech/livetalk/internal/relay"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	router  *relay.Router
	metrics metrics.Collector
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(router *relay.Router, m metrics.Collector) *HTTPHandler {
	return &HTTPHandler{router: router, metrics: m}
}

// SetupRoutes sets up HTTP routes
func (h *HTTPHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/status", h.handleStatus).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
}

// handleHealth handles health check requests
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixNano() / int64(time.Millisecond),
	})
}

// handleStatus handles status check requests
func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	clients, admins, calls := h.router.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"clients":      clients,
		"admins":       admins,
		"active_calls": calls,
		"timestamp":    time.Now().UnixNano() / int64(time.Millisecond),
	})
}
