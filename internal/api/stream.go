package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// Hub fans dispatched listings out to WebSocket clients. The dispatcher
// publishes into it; each client gets its own send queue and a slow
// client is dropped rather than allowed to stall the rest.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	recent     *ring
	mu         sync.RWMutex
	logger     *slog.Logger
}

// Client is one connected WebSocket consumer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub keeping the last recentSize events.
func NewHub(recentSize int, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		recent:     newRing(recentSize),
		logger:     logger.With("component", "ws-hub"),
	}
}

// Publish records a dispatched listing and pushes it to every client.
// Implements the dispatcher's sink.
func (h *Hub) Publish(l types.Listing, price decimal.Decimal, enr types.Enrichment) {
	evt := NewGiftEvent(l, price, enr)
	h.recent.Add(evt)
	h.broadcastEvent(evt)
}

// Recent returns the stored events, newest first.
func (h *Hub) Recent() []Event {
	return h.recent.Snapshot()
}

func (h *Hub) broadcastEvent(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshal event failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// Run is the hub's main loop. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "count", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "count", n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client can't keep up, drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// writePump drains the client's send queue onto the connection.
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

// readPump keeps the connection's read side alive for pongs. The feed
// is one-way; client messages are ignored.
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
	}
}

// NewClient registers a connection with the hub and starts its pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()

	return client
}
