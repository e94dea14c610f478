package relay

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
)

// fakeStore is an in-memory MessageStore with a monotonic id sequence.
type fakeStore struct {
	messages []domain.Message
	nextID   uint
	fail     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (s *fakeStore) Append(_ context.Context, room, author, body, kind string) (*domain.Message, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	msg := domain.Message{
		ID:        s.nextID,
		Room:      room,
		Author:    author,
		Body:      body,
		Kind:      kind,
		Status:    domain.StatusSent,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *fakeStore) History(_ context.Context, room string) ([]domain.Message, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	var result []domain.Message
	for _, msg := range s.messages {
		if msg.Room == room {
			result = append(result, msg)
		}
	}
	return result, nil
}

// fakeBroadcaster records every publish. Safe for concurrent use so tests
// can publish from multiple goroutines.
type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	room    string
	event   string
	payload any
	exclude string
}

func (b *fakeBroadcaster) Room(room, event string, payload any, excludeConn string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{room: room, event: event, payload: payload, exclude: excludeConn})
}

func (b *fakeBroadcaster) All(event string, payload any) {
	b.Room("", event, payload, "")
}

func (b *fakeBroadcaster) snapshot() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.calls...)
}

// fakeGroups records room subscriptions.
type fakeGroups struct {
	joined []string // "connID room"
}

func (g *fakeGroups) JoinRoom(connID, room string) {
	g.joined = append(g.joined, connID+" "+room)
}

func newTestService() (*Service, *fakeStore, *fakeBroadcaster, *fakeGroups) {
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	groups := &fakeGroups{}
	service := NewService(NewConnectionRegistry(), store, broadcaster, groups)
	return service, store, broadcaster, groups
}

func TestService_ConnectPushesPresence(t *testing.T) {
	service, _, broadcaster, _ := newTestService()

	service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
	service.Connect("conn2", Identity{UserID: 2, Username: "bob"})

	if len(broadcaster.calls) != 2 {
		t.Fatalf("broadcast calls = %d, want 2", len(broadcaster.calls))
	}

	last := broadcaster.calls[1]
	if last.event != EventUserList || last.room != "" {
		t.Errorf("presence push = %+v, want event %q to all", last, EventUserList)
	}
	if names, ok := last.payload.([]string); !ok || !reflect.DeepEqual(names, []string{"alice", "bob"}) {
		t.Errorf("presence payload = %v, want [alice bob]", last.payload)
	}
}

func TestService_DisconnectUnknownIsSilent(t *testing.T) {
	service, _, broadcaster, _ := newTestService()

	service.Disconnect("never-connected")

	if len(broadcaster.calls) != 0 {
		t.Errorf("broadcast calls = %d, want 0 for unknown disconnect", len(broadcaster.calls))
	}
}

func TestService_SendMessage(t *testing.T) {
	tests := []struct {
		name        string
		connect     bool
		payload     ChatMessagePayload
		wantErr     error
		wantKind    string
		wantStored  int
		wantPublish int
	}{
		{
			name:        "valid message with default kind",
			connect:     true,
			payload:     ChatMessagePayload{Room: "general", Message: "hi"},
			wantKind:    domain.KindText,
			wantStored:  1,
			wantPublish: 1,
		},
		{
			name:        "explicit kind preserved",
			connect:     true,
			payload:     ChatMessagePayload{Room: "general", Message: "pic", Kind: "image"},
			wantKind:    "image",
			wantStored:  1,
			wantPublish: 1,
		},
		{
			name:    "unauthenticated connection dropped",
			connect: false,
			payload: ChatMessagePayload{Room: "general", Message: "hi"},
			wantErr: ErrUnauthenticated,
		},
		{
			name:    "empty room dropped",
			connect: true,
			payload: ChatMessagePayload{Message: "hi"},
			wantErr: ErrInvalidRoom,
		},
		{
			name:    "empty body dropped",
			connect: true,
			payload: ChatMessagePayload{Room: "general"},
			wantErr: ErrInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, store, broadcaster, _ := newTestService()
			if tt.connect {
				service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
			}
			broadcaster.calls = nil

			err := service.SendMessage(context.Background(), "conn1", tt.payload)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SendMessage() error = %v, want %v", err, tt.wantErr)
				}
				if len(store.messages) != 0 || len(broadcaster.calls) != 0 {
					t.Error("dropped message must not be stored or broadcast")
				}
				return
			}

			if err != nil {
				t.Fatalf("SendMessage() unexpected error: %v", err)
			}
			if len(store.messages) != tt.wantStored {
				t.Fatalf("stored messages = %d, want %d", len(store.messages), tt.wantStored)
			}
			if store.messages[0].Kind != tt.wantKind {
				t.Errorf("stored kind = %q, want %q", store.messages[0].Kind, tt.wantKind)
			}
			if store.messages[0].Author != "alice" {
				t.Errorf("stored author = %q, want alice", store.messages[0].Author)
			}

			if len(broadcaster.calls) != tt.wantPublish {
				t.Fatalf("broadcast calls = %d, want %d", len(broadcaster.calls), tt.wantPublish)
			}
			call := broadcaster.calls[0]
			if call.room != tt.payload.Room || call.event != EventChatMessage || call.exclude != "" {
				t.Errorf("broadcast = %+v, want %s to %s including sender", call, EventChatMessage, tt.payload.Room)
			}
			msg, ok := call.payload.(*domain.Message)
			if !ok {
				t.Fatalf("broadcast payload type = %T, want *domain.Message", call.payload)
			}
			if msg.ID == 0 || msg.CreatedAt.IsZero() {
				t.Error("broadcast record missing store-assigned id or timestamp")
			}
		})
	}
}

func TestService_SendMessageStoreFailure(t *testing.T) {
	service, store, broadcaster, _ := newTestService()
	service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
	broadcaster.calls = nil
	store.fail = errors.New("store unavailable")

	err := service.SendMessage(context.Background(), "conn1", ChatMessagePayload{Room: "general", Message: "hi"})
	if err == nil {
		t.Fatal("SendMessage() error = nil, want store failure")
	}
	if len(broadcaster.calls) != 0 {
		t.Error("store failure must not broadcast")
	}
}

func TestService_JoinReplaysHistory(t *testing.T) {
	service, store, _, groups := newTestService()
	service.Connect("conn1", Identity{UserID: 1, Username: "alice"})

	if _, err := store.Append(context.Background(), "general", "bob", "first", domain.KindText); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if _, err := store.Append(context.Background(), "general", "bob", "second", domain.KindText); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if _, err := store.Append(context.Background(), "other", "bob", "elsewhere", domain.KindText); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	history, err := service.Join(context.Background(), "conn1", "general")
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Body != "first" || history[1].Body != "second" {
		t.Errorf("history order = [%s %s], want [first second]", history[0].Body, history[1].Body)
	}

	if !reflect.DeepEqual(groups.joined, []string{"conn1 general"}) {
		t.Errorf("groups joined = %v, want [conn1 general]", groups.joined)
	}
}

func TestService_JoinValidation(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
		room    string
		wantErr error
	}{
		{
			name:    "empty room",
			connect: true,
			room:    "",
			wantErr: ErrInvalidRoom,
		},
		{
			name:    "unauthenticated connection",
			connect: false,
			room:    "general",
			wantErr: ErrUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, _, groups := newTestService()
			if tt.connect {
				service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
			}

			_, err := service.Join(context.Background(), "conn1", tt.room)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Join() error = %v, want %v", err, tt.wantErr)
			}
			if len(groups.joined) != 0 {
				t.Error("rejected join must not subscribe")
			}
		})
	}
}

func TestService_TypingExcludesSender(t *testing.T) {
	service, _, broadcaster, _ := newTestService()
	service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
	broadcaster.calls = nil

	if err := service.TypingStart("conn1", "general"); err != nil {
		t.Fatalf("TypingStart() error: %v", err)
	}
	if err := service.TypingStop("conn1", "general"); err != nil {
		t.Fatalf("TypingStop() error: %v", err)
	}

	if len(broadcaster.calls) != 2 {
		t.Fatalf("broadcast calls = %d, want 2", len(broadcaster.calls))
	}

	start, stop := broadcaster.calls[0], broadcaster.calls[1]
	if start.event != EventTypingStart || stop.event != EventTypingStop {
		t.Errorf("events = [%s %s], want [%s %s]", start.event, stop.event, EventTypingStart, EventTypingStop)
	}
	for _, call := range broadcaster.calls {
		if call.exclude != "conn1" {
			t.Errorf("typing broadcast exclude = %q, want conn1", call.exclude)
		}
		notice, ok := call.payload.(TypingNotice)
		if !ok || notice.Username != "alice" {
			t.Errorf("typing payload = %v, want TypingNotice{alice}", call.payload)
		}
	}
}

func TestService_TypingValidation(t *testing.T) {
	service, _, broadcaster, _ := newTestService()

	if err := service.TypingStart("conn1", "general"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("TypingStart() unauthenticated error = %v, want %v", err, ErrUnauthenticated)
	}

	service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
	broadcaster.calls = nil

	if err := service.TypingStart("conn1", ""); !errors.Is(err, ErrInvalidRoom) {
		t.Errorf("TypingStart() empty room error = %v, want %v", err, ErrInvalidRoom)
	}
	if len(broadcaster.calls) != 0 {
		t.Error("rejected typing signal must not broadcast")
	}
}

// gatedBroadcaster blocks the first presence push until the test releases
// it, so a second registration can race the first one's push.
type gatedBroadcaster struct {
	fakeBroadcaster
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (b *gatedBroadcaster) All(event string, payload any) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.started)
		<-b.gate
	}
	b.fakeBroadcaster.All(event, payload)
}

func TestService_PresencePushAtomicWithRegistration(t *testing.T) {
	broadcaster := &gatedBroadcaster{
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	service := NewService(NewConnectionRegistry(), newFakeStore(), broadcaster, &fakeGroups{})

	done := make(chan struct{}, 2)
	go func() {
		service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
		done <- struct{}{}
	}()
	<-broadcaster.started

	// A second connection registers while the first push is still in
	// flight. Its push must come after the blocked one.
	go func() {
		service.Connect("conn2", Identity{UserID: 2, Username: "bob"})
		done <- struct{}{}
	}()
	time.Sleep(20 * time.Millisecond)

	close(broadcaster.gate)
	<-done
	<-done

	calls := broadcaster.snapshot()
	if len(calls) != 2 {
		t.Fatalf("presence pushes = %d, want 2", len(calls))
	}
	last := calls[len(calls)-1]
	names, ok := last.payload.([]string)
	if !ok || !reflect.DeepEqual(names, []string{"alice", "bob"}) {
		t.Errorf("last presence push = %v, want [alice bob]; a stale list must never be delivered last", last.payload)
	}
}

// gatedStore blocks the first Append until released, holding up the first
// send so a concurrent one can race it.
type gatedStore struct {
	*fakeStore
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (s *gatedStore) Append(ctx context.Context, room, author, body, kind string) (*domain.Message, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.started)
		<-s.gate
	}
	return s.fakeStore.Append(ctx, room, author, body, kind)
}

func TestService_RoomBroadcastFollowsInsertOrder(t *testing.T) {
	store := &gatedStore{
		fakeStore: newFakeStore(),
		started:   make(chan struct{}),
		gate:      make(chan struct{}),
	}
	broadcaster := &fakeBroadcaster{}
	service := NewService(NewConnectionRegistry(), store, broadcaster, &fakeGroups{})
	service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
	service.Connect("conn2", Identity{UserID: 2, Username: "bob"})
	broadcaster.mu.Lock()
	broadcaster.calls = nil
	broadcaster.mu.Unlock()

	done := make(chan struct{}, 2)
	go func() {
		_ = service.SendMessage(context.Background(), "conn1", ChatMessagePayload{Room: "general", Message: "first"})
		done <- struct{}{}
	}()
	<-store.started

	go func() {
		_ = service.SendMessage(context.Background(), "conn2", ChatMessagePayload{Room: "general", Message: "second"})
		done <- struct{}{}
	}()
	time.Sleep(20 * time.Millisecond)

	if calls := broadcaster.snapshot(); len(calls) != 0 {
		t.Fatalf("broadcast calls = %d before any insert completed, want 0", len(calls))
	}

	close(store.gate)
	<-done
	<-done

	calls := broadcaster.snapshot()
	if len(calls) != 2 {
		t.Fatalf("broadcast calls = %d, want 2", len(calls))
	}
	for i, want := range []string{"first", "second"} {
		msg, ok := calls[i].payload.(*domain.Message)
		if !ok || msg.Body != want {
			t.Errorf("broadcast[%d] = %v, want body %q; room fan-out must follow insert completion order", i, calls[i].payload, want)
		}
	}
}

// disconnectingStore simulates the sender's connection closing while its
// message insert is still in flight.
type disconnectingStore struct {
	*fakeStore
	service *Service
	connID  string
}

func (s *disconnectingStore) Append(ctx context.Context, room, author, body, kind string) (*domain.Message, error) {
	s.service.Disconnect(s.connID)
	return s.fakeStore.Append(ctx, room, author, body, kind)
}

func TestService_SenderDisconnectDuringSend(t *testing.T) {
	store := &disconnectingStore{fakeStore: newFakeStore(), connID: "conn1"}
	broadcaster := &fakeBroadcaster{}
	service := NewService(NewConnectionRegistry(), store, broadcaster, &fakeGroups{})
	store.service = service

	service.Connect("conn1", Identity{UserID: 1, Username: "alice"})
	broadcaster.mu.Lock()
	broadcaster.calls = nil
	broadcaster.mu.Unlock()

	err := service.SendMessage(context.Background(), "conn1", ChatMessagePayload{Room: "general", Message: "parting words"})
	if err != nil {
		t.Fatalf("SendMessage() error = %v; a mid-send disconnect must not fail the send", err)
	}

	if len(store.messages) != 1 {
		t.Fatalf("stored messages = %d, want 1", len(store.messages))
	}

	var chats []broadcastCall
	for _, call := range broadcaster.snapshot() {
		if call.event == EventChatMessage {
			chats = append(chats, call)
		}
	}
	if len(chats) != 1 {
		t.Fatalf("chat broadcasts = %d, want exactly 1", len(chats))
	}
	msg, ok := chats[0].payload.(*domain.Message)
	if !ok || msg.Body != "parting words" || chats[0].room != "general" {
		t.Errorf("chat broadcast = %+v, want the stored message to room general", chats[0])
	}

	if names := service.OnlineUsernames(); len(names) != 0 {
		t.Errorf("presence after disconnect = %v, want empty", names)
	}
}
