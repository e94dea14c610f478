package broadcast

import (
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Conn is the write side of a client connection. Satisfied by
// *websocket.Conn; tests substitute a fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a connected WebSocket client. Writes to the connection
// go through write so that the event-consumer goroutine and the
// connection's own reader goroutine never call WriteMessage concurrently.
type Client struct {
	ID       string
	Username string
	Conn     Conn

	writeMu sync.Mutex
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections and room membership, and delivers
// broadcast payloads. A connection may belong to any number of rooms;
// membership is removed wholesale when the connection unregisters.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client         // clientID -> Client
	rooms   map[string]map[string]bool // room -> set of clientIDs
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]bool),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[hub] Client %s (%s) registered", client.ID, client.Username)
}

// Unregister removes a client and its room memberships.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return
	}
	delete(h.clients, clientID)
	for room, members := range h.rooms {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	log.Printf("[hub] Client %s unregistered", clientID)
}

// JoinRoom subscribes a client to a room. Idempotent; no-op for unknown
// clients.
func (h *Hub) JoinRoom(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][clientID] = true
	log.Printf("[hub] Client %s joined room %s", clientID, room)
}

// LeaveRoom removes a client from a room.
func (h *Hub) LeaveRoom(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish delivers data to every member of a room, or to every client when
// room is empty. excludeID, when non-empty, is skipped.
func (h *Hub) Publish(room string, data []byte, excludeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room == "" {
		for _, client := range h.clients {
			if client.ID == excludeID {
				continue
			}
			h.sendToClient(client, data)
		}
		return
	}

	for clientID := range h.rooms[room] {
		if clientID == excludeID {
			continue
		}
		if client, ok := h.clients[clientID]; ok {
			h.sendToClient(client, data)
		}
	}
}

// SendTo delivers data to a single client.
func (h *Hub) SendTo(clientID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[clientID]; ok {
		h.sendToClient(client, data)
	}
}

func (h *Hub) sendToClient(client *Client, data []byte) {
	if err := client.write(data); err != nil {
		log.Printf("[hub] Failed to send to client %s: %v", client.ID, err)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients in a room.
func (h *Hub) RoomClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// CloseAll closes every client connection and clears all state.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]bool)
}
