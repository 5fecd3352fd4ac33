// Package dashboard implements the ambient operator-facing HTTP+WebSocket
// surface: liveness, a snapshot endpoint, a live push feed, and
// Prometheus metrics exposition. It is pure addition alongside the gRPC
// BookSummary RPC (internal/rpc) — no gRPC subscriber depends on it.
//
// The Hub/Client broadcast pattern uses register/unregister/broadcast
// channels guarded by a mutex, a bounded per-client send buffer, and
// ping/pong keep-alive, pushing per-pair Summary updates to whichever
// browser clients are watching that pair.
package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// Event is the envelope every dashboard websocket message is wrapped in.
type Event struct {
	Type      string      `json:"type"`
	Pair      string      `json:"pair"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Hub manages WebSocket clients subscribed to one or more pairs and
// broadcasts Summary updates to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	mu         sync.RWMutex
	logger     *slog.Logger
}

type broadcastMsg struct {
	pair string
	data []byte
}

// Client represents one connected WebSocket observer, scoped to a single
// pair.
type Client struct {
	hub  *Hub
	pair string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
		logger:     logger.With("component", "dashboard-hub"),
	}
}

// Run starts the hub's main loop; call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("client connected", "pair", client.pair, "count", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", "pair", client.pair, "count", len(h.clients))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.pair != msg.pair {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastSummary pushes a merged Summary to every client watching pair.
func (h *Hub) BroadcastSummary(pair string, summary types.Summary) {
	evt := Event{Type: "summary", Pair: pair, Timestamp: time.Now(), Data: summary}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal summary event", "error", err)
		return
	}

	select {
	case h.broadcast <- broadcastMsg{pair: pair, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping update", "pair", pair)
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

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

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
		// The dashboard feed is read-only; client messages are ignored.
	}
}

// NewClient registers conn as a new Client watching pair and starts its
// pumps.
func NewClient(hub *Hub, conn *websocket.Conn, pair string) *Client {
	client := &Client{hub: hub, pair: pair, conn: conn, send: make(chan []byte, 256)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return client
}
