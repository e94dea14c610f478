package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/example/chat-relay/events"
	"github.com/example/chat-relay/modules/relay"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// BroadcastModule consumes relay broadcast events and pushes them to
// WebSocket clients through the hub.
type BroadcastModule struct {
	hub *Hub
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule() *BroadcastModule {
	return &BroadcastModule{
		hub: NewHub(),
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start initializes the module.
func (m *BroadcastModule) Start(_ context.Context) error {
	log.Println("[broadcast] Module started - WebSocket hub ready")
	return nil
}

// Stop shuts down the module, closing all client connections.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	m.hub.CloseAll()
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomBroadcastV1, m.handleRoomBroadcast, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomBroadcast consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: RoomBroadcast")
	return nil
}

// handleRoomBroadcast frames the event for the wire and delivers it.
func (m *BroadcastModule) handleRoomBroadcast(_ context.Context, event events.BroadcastEvent, _ *mono.Msg) error {
	envelope := relay.Envelope{
		Event: event.Event,
		Data:  event.Data,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[broadcast] Failed to marshal %s envelope: %v", event.Event, err)
		return nil // nothing to retry
	}

	m.hub.Publish(event.Room, data, event.ExcludeConn)
	return nil
}

// Hub returns the WebSocket hub for modules wired from main.
func (m *BroadcastModule) Hub() *Hub {
	return m.hub
}
