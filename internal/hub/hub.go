// Package hub owns the WebSocket connections on the relay side. Each
// connection gets an ephemeral socket identity and a pair of pump goroutines;
// decoded events are handed to the router, which talks back through Send.
package hub

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/omitech/livetalk/internal/metrics"
	"github.com/omitech/livetalk/internal/signal"
)

const (
	maxMessageSize = 64 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// Router consumes decoded events from connections.
type Router interface {
	Handle(socketID string, msg signal.Message)
	Disconnect(socketID string)
}

// conn is one connected participant.
type conn struct {
	hub  *Hub
	ws   *websocket.Conn
	id   string
	send chan []byte
}

// Hub maintains the set of active connections
type Hub struct {
	router  Router
	metrics metrics.Collector

	// Registered connections
	conns map[string]*conn

	// Register requests from connections
	register chan *conn

	// Unregister requests from connections
	unregister chan *conn

	// Direct messages to specific connections
	direct chan directMsg

	// Stop channel
	stopChan chan struct{}

	mu sync.RWMutex
}

type directMsg struct {
	socketID string
	data     []byte
}

// New creates a hub feeding the given router.
func New(router Router, m metrics.Collector) *Hub {
	if m == nil {
		m = metrics.NewNoopCollector()
	}
	return &Hub{
		router:     router,
		metrics:    m,
		conns:      make(map[string]*conn),
		register:   make(chan *conn),
		unregister: make(chan *conn),
		direct:     make(chan directMsg),
		stopChan:   make(chan struct{}),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.conns[c.id] = c
			h.mu.Unlock()
			log.Printf("hub: connection registered: %s", c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[c.id]; ok {
				delete(h.conns, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			h.router.Disconnect(c.id)
			log.Printf("hub: connection unregistered: %s", c.id)

		case msg := <-h.direct:
			h.mu.RLock()
			c, exists := h.conns[msg.socketID]
			h.mu.RUnlock()

			if exists {
				select {
				case c.send <- msg.data:
				default:
					h.mu.Lock()
					close(c.send)
					delete(h.conns, msg.socketID)
					h.mu.Unlock()
				}
			}

		case <-h.stopChan:
			h.mu.Lock()
			for id, c := range h.conns {
				c.ws.Close()
				close(c.send)
				delete(h.conns, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Attach adopts an upgraded WebSocket connection, assigns it a socket
// identity, and starts its pumps. Returns the assigned identity.
func (h *Hub) Attach(ws *websocket.Conn) string {
	c := &conn{
		hub:  h,
		ws:   ws,
		id:   uuid.NewString(),
		send: make(chan []byte, 256),
	}

	h.register <- c

	go c.writePump()
	go c.readPump()

	return c.id
}

// Send encodes and delivers one event to a specific connection. Implements
// the router's Sender. Reports false when the connection is gone.
func (h *Hub) Send(socketID string, msg signal.Message) bool {
	data, err := signal.Encode(msg)
	if err != nil {
		log.Printf("hub: encode %s: %v", msg.Type(), err)
		h.metrics.MessageError(string(msg.Type()), "encode")
		return false
	}

	h.mu.RLock()
	_, exists := h.conns[socketID]
	h.mu.RUnlock()
	if !exists {
		return false
	}

	select {
	case h.direct <- directMsg{socketID: socketID, data: data}:
		h.metrics.MessageSent(string(msg.Type()), len(data))
		return true
	case <-h.stopChan:
		return false
	}
}

// Close closes the hub
func (h *Hub) Close() {
	close(h.stopChan)
}

// readPump pumps decoded events from the connection into the router.
func (c *conn) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: read error from %s: %v", c.id, err)
			}
			break
		}

		msg, err := signal.Decode(data)
		if err != nil {
			log.Printf("hub: bad message from %s: %v", c.id, err)
			c.hub.metrics.MessageError("unknown", "decode")
			continue
		}

		c.hub.metrics.MessageReceived(string(msg.Type()), len(data))
		c.hub.router.Handle(c.id, msg)
	}
}

// writePump pumps queued messages to the connection and keeps it alive with
// pings.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
