package relay

import (
	"context"
	"fmt"

	domain "github.com/example/chat-relay/domain/chat"
	"gorm.io/gorm"
)

// MessageStore is the durable append-only log of room messages.
type MessageStore interface {
	// Append stores a message and returns the record with the
	// store-assigned id and timestamp filled in.
	Append(ctx context.Context, room, author, body, kind string) (*domain.Message, error)
	// History returns all messages for a room ordered by creation time
	// ascending.
	History(ctx context.Context, room string) ([]domain.Message, error)
}

// GormMessageStore implements MessageStore on a GORM database.
type GormMessageStore struct {
	db *gorm.DB
}

// NewGormMessageStore creates a new GormMessageStore.
func NewGormMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{
		db: db,
	}
}

// Append stores a message.
func (s *GormMessageStore) Append(ctx context.Context, room, author, body, kind string) (*domain.Message, error) {
	msg := &domain.Message{
		Room:   room,
		Author: author,
		Body:   body,
		Kind:   kind,
		Status: domain.StatusSent,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

// History returns all messages for a room, oldest first.
func (s *GormMessageStore) History(ctx context.Context, room string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("timestamp ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}
