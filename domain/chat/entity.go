package chat

import (
	"time"
)

// Message kinds. Clients may define further transport-level kinds (image,
// audio, ...); the relay stores whatever kind the sender supplied and only
// fills in KindText when the field is omitted.
const (
	KindText = "text"
)

// StatusSent is the delivery status assigned to every stored message.
const StatusSent = "sent"

// Message is one stored chat message. The store assigns ID and CreatedAt on
// insert; records are immutable afterwards.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Room      string    `gorm:"index;not null;type:text" json:"room"`
	Author    string    `gorm:"not null;type:text" json:"author"`
	Body      string    `gorm:"column:message;not null;type:text" json:"message"`
	Kind      string    `gorm:"column:type;not null;default:'text';type:text" json:"type"`
	Status    string    `gorm:"not null;default:'sent';type:text" json:"status"`
	CreatedAt time.Time `gorm:"column:timestamp;index" json:"timestamp"`
}

// TableName returns the table name for the Message entity.
func (Message) TableName() string {
	return "messages"
}
