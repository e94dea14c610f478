package api

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/chat-relay/modules/broadcast"
	"github.com/example/chat-relay/modules/relay"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// identityLocal is the fiber locals key carrying the verified identity from
// the handshake middleware into the WebSocket handler.
const identityLocal = "identity"

// wsHandshake gates the WebSocket upgrade: the connection must present a
// valid token (query parameter or Authorization header) or it is refused
// before any event can be processed.
func (m *APIModule) wsHandshake(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token = BearerToken(c.Get("Authorization"))
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthenticated",
			Message: "Authentication token is required",
		})
	}

	claims, err := m.auth.ValidateToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired token",
		})
	}

	c.Locals(identityLocal, relay.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
	})
	return c.Next()
}

// handleWebSocket runs the per-connection event loop. The connection is
// already authenticated; its identity is immutable for the connection's
// lifetime.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	identity, ok := c.Locals(identityLocal).(relay.Identity)
	if !ok {
		_ = c.Close()
		return
	}

	connID := uuid.New().String()
	client := &broadcast.Client{
		ID:       connID,
		Username: identity.Username,
		Conn:     c,
	}

	// Register with the hub before the registry so the presence push
	// triggered by Connect reaches this connection too.
	m.hub.Register(client)
	m.relay.Connect(connID, identity)
	defer func() {
		m.relay.Disconnect(connID)
		m.hub.Unregister(connID)
		log.Printf("[api] WebSocket client disconnected: %s (%s)", connID, identity.Username)
	}()

	log.Printf("[api] WebSocket client connected: %s (%s)", connID, identity.Username)

	m.sendEvent(connID, relay.EventConnectionSuccess, relay.ConnectionSuccessPayload{
		Username: identity.Username,
	})

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[api] Client %s closed connection", connID)
			} else {
				log.Printf("[api] Read error from %s: %v", connID, err)
			}
			break
		}

		var envelope relay.Envelope
		if err := json.Unmarshal(msgBytes, &envelope); err != nil {
			log.Printf("[api] Invalid frame from %s: %v", connID, err)
			continue
		}

		m.dispatchEvent(connID, envelope)
	}
}

// dispatchEvent routes one client event. In-session validation failures are
// logged and dropped without a client-visible error.
func (m *APIModule) dispatchEvent(connID string, envelope relay.Envelope) {
	switch envelope.Event {
	case relay.EventJoinRoom:
		m.handleJoinRoom(connID, envelope.Data)
	case relay.EventChatMessage:
		m.handleChatMessage(connID, envelope.Data)
	case relay.EventTypingStart, relay.EventTypingStop:
		m.handleTyping(connID, envelope.Event, envelope.Data)
	default:
		log.Printf("[api] Unknown event %q from %s", envelope.Event, connID)
	}
}

// handleJoinRoom subscribes the connection and replays stored history to the
// joiner only.
func (m *APIModule) handleJoinRoom(connID string, data json.RawMessage) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil {
		log.Printf("[api] Dropping join from %s: %v", connID, err)
		return
	}

	// context.Background: a disconnect mid-join must not cancel the
	// history read for other handlers sharing the store.
	history, err := m.relay.Join(context.Background(), connID, room)
	if err != nil {
		log.Printf("[api] Dropping join from %s: %v", connID, err)
		return
	}

	m.sendEvent(connID, relay.EventChatHistory, history)
}

func (m *APIModule) handleChatMessage(connID string, data json.RawMessage) {
	var payload relay.ChatMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[api] Dropping chat message from %s: %v", connID, err)
		return
	}

	// context.Background: an in-flight send must persist and broadcast
	// even if the sender disconnects before the insert completes.
	if err := m.relay.SendMessage(context.Background(), connID, payload); err != nil {
		log.Printf("[api] Dropping chat message from %s: %v", connID, err)
	}
}

func (m *APIModule) handleTyping(connID, event string, data json.RawMessage) {
	var payload relay.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[api] Dropping typing signal from %s: %v", connID, err)
		return
	}

	var err error
	if event == relay.EventTypingStart {
		err = m.relay.TypingStart(connID, payload.Room)
	} else {
		err = m.relay.TypingStop(connID, payload.Room)
	}
	if err != nil {
		log.Printf("[api] Dropping typing signal from %s: %v", connID, err)
	}
}

// sendEvent delivers one framed event to a single connection. Delivery goes
// through the hub so these writes and the broadcast writes to the same
// connection share the client's write lock.
func (m *APIModule) sendEvent(connID string, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[api] Failed to marshal %s payload: %v", event, err)
		return
	}

	frame, err := json.Marshal(relay.Envelope{Event: event, Data: data})
	if err != nil {
		log.Printf("[api] Failed to marshal %s envelope: %v", event, err)
		return
	}

	m.hub.SendTo(connID, frame)
}
