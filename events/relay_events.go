package events

import (
	"encoding/json"

	"github.com/go-monolith/mono/pkg/helper"
)

// BroadcastEvent asks the broadcast module to push a wire event to connected
// clients. An empty Room targets every connection; ExcludeConn, when set,
// skips that one connection (used by typing indicators so the sender never
// sees its own signal).
type BroadcastEvent struct {
	Room        string          `json:"room"`
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
	ExcludeConn string          `json:"exclude_conn,omitempty"`
}

// Event definitions for the relay domain.
var (
	RoomBroadcastV1 = helper.EventDefinition[BroadcastEvent](
		"relay",
		"RoomBroadcast",
		"v1",
	)
)
