package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domain "github.com/example/chat-relay/domain/chat"
)

var (
	// ErrUnauthenticated is returned when the connection has no registered
	// identity.
	ErrUnauthenticated = errors.New("connection not authenticated")
	// ErrInvalidRoom is returned when the room name is empty.
	ErrInvalidRoom = errors.New("invalid room name")
	// ErrInvalidMessage is returned when the message body is empty.
	ErrInvalidMessage = errors.New("invalid message body")
)

// Broadcaster is the room-broadcast capability the relay depends on. Room
// delivers a wire event to every connection currently subscribed to the room
// (excludeConn, when non-empty, is skipped); All delivers to every
// connection.
type Broadcaster interface {
	Room(room, event string, payload any, excludeConn string)
	All(event string, payload any)
}

// RoomGroups is the transport-level group membership the relay subscribes
// connections into. Membership is torn down by the transport on disconnect.
type RoomGroups interface {
	JoinRoom(connID, room string)
}

// Service is the coordination core: it authenticates connections into the
// registry, subscribes them to rooms with history replay, and persists then
// fans out messages. In-session validation failures are dropped without a
// client-visible error; the wire protocol is fire-and-forget.
//
// Handlers run on per-connection reader goroutines, so the registry mutation
// and the presence push that follows must be one atomic step: presenceMu
// spans both, which keeps the last-delivered user list the current one.
// roomLock serializes persist-then-broadcast per room, so a room's broadcast
// order is its insert order and a slow store stalls only that room.
type Service struct {
	registry    *ConnectionRegistry
	store       MessageStore
	broadcaster Broadcaster
	groups      RoomGroups
	logger      *slog.Logger

	presenceMu sync.Mutex
	roomMu     sync.Mutex
	roomLocks  map[string]*sync.Mutex
}

// NewService creates a new Service.
func NewService(registry *ConnectionRegistry, store MessageStore, broadcaster Broadcaster, groups RoomGroups) *Service {
	return &Service{
		registry:    registry,
		store:       store,
		broadcaster: broadcaster,
		groups:      groups,
		logger:      slog.Default(),
		roomLocks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) roomLock(room string) *sync.Mutex {
	s.roomMu.Lock()
	defer s.roomMu.Unlock()

	lock, ok := s.roomLocks[room]
	if !ok {
		lock = &sync.Mutex{}
		s.roomLocks[room] = lock
	}
	return lock
}

// Connect registers an authenticated connection and pushes the updated
// online-user list to every connection.
func (s *Service) Connect(connID string, identity Identity) {
	s.presenceMu.Lock()
	s.registry.Register(connID, identity)
	s.pushPresence()
	s.presenceMu.Unlock()
	s.logger.Info("connection registered", "connID", connID, "username", identity.Username)
}

// Disconnect deregisters a connection and, if it was registered, pushes the
// updated online-user list. Safe to call for unknown connections.
func (s *Service) Disconnect(connID string) {
	s.presenceMu.Lock()
	identity, ok := s.registry.Deregister(connID)
	if ok {
		s.pushPresence()
	}
	s.presenceMu.Unlock()
	if !ok {
		return
	}
	s.logger.Info("connection deregistered", "connID", connID, "username", identity.Username)
}

// Join subscribes the connection to a room and returns the room's stored
// history, oldest first, for replay to the joiner. Joining twice is a no-op
// at the membership level; the history is replayed again.
func (s *Service) Join(ctx context.Context, connID, room string) ([]domain.Message, error) {
	if _, ok := s.registry.Identity(connID); !ok {
		return nil, ErrUnauthenticated
	}
	if room == "" {
		return nil, ErrInvalidRoom
	}

	// Subscribe before the snapshot so nothing persisted during the fetch
	// is lost; a message may appear in both the replay and the live
	// stream, which the protocol tolerates.
	s.groups.JoinRoom(connID, room)

	return s.store.History(ctx, room)
}

// SendMessage persists a message and fans it out to the target room, sender
// included. The broadcast carries the stored record, so every member sees
// the store-assigned id and timestamp. kind defaults to "text".
func (s *Service) SendMessage(ctx context.Context, connID string, payload ChatMessagePayload) error {
	identity, ok := s.registry.Identity(connID)
	if !ok {
		return ErrUnauthenticated
	}
	if payload.Room == "" {
		return ErrInvalidRoom
	}
	if payload.Message == "" {
		return ErrInvalidMessage
	}

	kind := payload.Kind
	if kind == "" {
		kind = domain.KindText
	}

	// Hold the room lock from insert through fan-out: broadcasts leave in
	// the order their inserts completed.
	lock := s.roomLock(payload.Room)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.store.Append(ctx, payload.Room, identity.Username, payload.Message, kind)
	if err != nil {
		// Store failure: logged and dropped, no broadcast.
		return err
	}

	s.broadcaster.Room(msg.Room, EventChatMessage, msg, "")
	return nil
}

// TypingStart broadcasts a typing indicator to the room, excluding the
// sender. Stateless and unpersisted.
func (s *Service) TypingStart(connID, room string) error {
	return s.typing(connID, room, EventTypingStart)
}

// TypingStop broadcasts the end-of-typing indicator to the room, excluding
// the sender.
func (s *Service) TypingStop(connID, room string) error {
	return s.typing(connID, room, EventTypingStop)
}

func (s *Service) typing(connID, room, event string) error {
	identity, ok := s.registry.Identity(connID)
	if !ok {
		return ErrUnauthenticated
	}
	if room == "" {
		return ErrInvalidRoom
	}

	s.broadcaster.Room(room, event, TypingNotice{Username: identity.Username}, connID)
	return nil
}

// OnlineUsernames returns the current presence list.
func (s *Service) OnlineUsernames() []string {
	return s.registry.OnlineUsernames()
}

func (s *Service) pushPresence() {
	s.broadcaster.All(EventUserList, s.registry.OnlineUsernames())
}
