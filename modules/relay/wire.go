package relay

import (
	"encoding/json"
)

// Wire event names, matching the client protocol. Client→server unless noted.
const (
	EventJoinRoom          = "join room"
	EventChatMessage       = "chat message" // both directions
	EventChatHistory       = "chat history" // server→joiner
	EventUserList          = "update user list"
	EventConnectionSuccess = "connection success"
	EventTypingStart       = "user typing start"
	EventTypingStop        = "user typing stop"
)

// Envelope is the framing for every WebSocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessagePayload is the client payload for a chat message event.
type ChatMessagePayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
	Kind    string `json:"type,omitempty"`
}

// TypingPayload is the client payload for typing signals.
type TypingPayload struct {
	Room string `json:"room"`
}

// TypingNotice is broadcast to a room when a member starts or stops typing.
type TypingNotice struct {
	Username string `json:"username"`
}

// ConnectionSuccessPayload acknowledges a completed handshake.
type ConnectionSuccessPayload struct {
	Username string `json:"username"`
}
