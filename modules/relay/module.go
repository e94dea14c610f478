package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/events"
	"github.com/go-monolith/mono"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RelayModule owns the coordination core and the message store.
type RelayModule struct {
	db       *gorm.DB
	dbPath   string
	registry *ConnectionRegistry
	service  *Service
	groups   RoomGroups
	eventBus mono.EventBus
}

// Compile-time interface checks.
var _ mono.Module = (*RelayModule)(nil)
var _ mono.EventBusAwareModule = (*RelayModule)(nil)
var _ mono.EventEmitterModule = (*RelayModule)(nil)
var _ mono.HealthCheckableModule = (*RelayModule)(nil)

// NewModule creates a new RelayModule.
func NewModule() *RelayModule {
	dbPath := os.Getenv("CHAT_DB_PATH")
	if dbPath == "" {
		dbPath = "chat_messages.db"
	}
	return &RelayModule{
		dbPath:   dbPath,
		registry: NewConnectionRegistry(),
	}
}

// Name returns the module name.
func (m *RelayModule) Name() string {
	return "relay"
}

// SetEventBus receives the EventBus from the framework.
func (m *RelayModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// SetGroups sets the transport group membership (called from main.go).
func (m *RelayModule) SetGroups(groups RoomGroups) {
	m.groups = groups
}

// EmitEvents declares the events this module can emit.
func (m *RelayModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomBroadcastV1.ToBase(),
	}
}

// Start opens the message store and assembles the relay service.
func (m *RelayModule) Start(_ context.Context) error {
	if m.groups == nil {
		return fmt.Errorf("room groups dependency not set")
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := db.AutoMigrate(&domain.Message{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	store := NewGormMessageStore(db)
	m.service = NewService(m.registry, store, &busBroadcaster{bus: m.eventBus}, m.groups)

	log.Printf("[relay] Module started (database: %s)", m.dbPath)
	return nil
}

// Stop shuts down the module.
func (m *RelayModule) Stop(_ context.Context) error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	log.Println("[relay] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *RelayModule) Health(_ context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get database connection: %v", err),
		}
	}

	if err := sqlDB.Ping(); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"database": m.dbPath,
			"online":   len(m.registry.OnlineUsernames()),
		},
	}
}

// Service returns the relay service for modules wired from main.
func (m *RelayModule) Service() *Service {
	return m.service
}

// busBroadcaster implements Broadcaster by publishing broadcast requests on
// the event bus; the broadcast module consumes them and writes to sockets.
// Per-publisher event order is preserved by the bus, so per-room fan-out
// order follows store-insert completion order.
type busBroadcaster struct {
	bus mono.EventBus
}

func (b *busBroadcaster) Room(room, event string, payload any, excludeConn string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[relay] Failed to marshal %s payload: %v", event, err)
		return
	}

	ev := events.BroadcastEvent{
		Room:        room,
		Event:       event,
		Data:        data,
		ExcludeConn: excludeConn,
	}
	if err := events.RoomBroadcastV1.Publish(b.bus, ev, nil); err != nil {
		log.Printf("[relay] Failed to publish %s broadcast: %v", event, err)
	}
}

func (b *busBroadcaster) All(event string, payload any) {
	b.Room("", event, payload, "")
}
