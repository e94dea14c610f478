package user

import (
	"time"
)

// DefaultAvatarURL is assigned to accounts that never uploaded an avatar.
const DefaultAvatarURL = "/default-avatar.png"

// User represents a registered account.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null;type:text"`
	PasswordHash string `gorm:"not null;type:text"`
	AvatarURL    string `gorm:"not null;default:'/default-avatar.png';type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for the User entity.
func (User) TableName() string {
	return "users"
}

// Profile is the public view of a user returned by the user listing.
type Profile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}
