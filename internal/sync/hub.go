// Package sync fans scene change events out to connected collaborators over
// WebSocket. Each client subscribes to a single scan and receives only that
// scan's changes.
package sync

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	stdsync "sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/scanloom/scanloom/pkg/types"
)

// Hub manages WebSocket connections and broadcasts change events.
type Hub struct {
	clients    map[clientInterface]bool
	broadcast  chan types.ChangeEvent
	register   chan clientInterface
	unregister chan clientInterface
	mu         stdsync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	scan() string
	close()
}

// Client represents a WebSocket connection subscribed to one scan.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	scanID string
	send   chan []byte
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) scan() string {
	return c.scanID
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// NewHub creates a new change event hub.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[clientInterface]bool),
		broadcast:  make(chan types.ChangeEvent, 256),
		register:   make(chan clientInterface),
		unregister: make(chan clientInterface),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("sync: client connected to scan %s (total: %d)", client.scan(), count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("sync: client disconnected (total: %d)", count)

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("ERROR: failed to marshal change event: %v", err)
				continue
			}

			// Full Lock because a stalled client is dropped inline.
			h.mu.Lock()
			for client := range h.clients {
				if client.scan() != ev.ScanID {
					continue
				}
				sendChan := client.getSendChannel()
				select {
				case sendChan <- data:
				default:
					close(sendChan)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			log.Println("sync: hub stopping...")
			return
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Broadcast sends a change event to every client subscribed to its scan.
func (h *Hub) Broadcast(ev types.ChangeEvent) {
	select {
	case h.broadcast <- ev:
	default:
		log.Println("WARNING: change event broadcast channel full, dropping event")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client clientInterface) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client clientInterface) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests. The scan subscription is
// taken from the "scan" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scanID := r.URL.Query().Get("scan")
	if scanID == "" {
		http.Error(w, "missing scan parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		log.Printf("ERROR: WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		scanID: scanID,
		send:   make(chan []byte, 256),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends change events to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()

		if err != nil {
			log.Printf("ERROR: WebSocket write failed: %v", err)
			return
		}
	}
}

// readPump drains inbound messages to detect disconnections. Clients do not
// write; changes flow in through the REST API and out through the feed.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, _, err := c.conn.Read(context.Background())
		if err != nil {
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
	ScanID   string
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) scan() string {
	return m.ScanID
}

func (m *MockClient) close() {
	// No-op for mock client
}
