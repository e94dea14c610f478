package auth

import (
	"errors"

	domain "github.com/example/chat-relay/domain/user"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the username is already taken.
	ErrUserExists = errors.New("username already taken")
)

// UserRepository handles user persistence using GORM.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// Create creates a new user in the database.
func (r *UserRepository) Create(user *domain.User) error {
	result := r.db.Create(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return result.Error
	}
	return nil
}

// FindByUsername finds a user by username.
func (r *UserRepository) FindByUsername(username string) (*domain.User, error) {
	var user domain.User
	result := r.db.First(&user, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// UsernameExists checks if a user with the given username exists.
func (r *UserRepository) UsernameExists(username string) (bool, error) {
	var count int64
	result := r.db.Model(&domain.User{}).Where("username = ?", username).Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// List returns every registered user ordered by id.
func (r *UserRepository) List() ([]domain.User, error) {
	var users []domain.User
	result := r.db.Order("id ASC").Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}
	return users, nil
}

// UpdateAvatarURL sets the avatar URL for the named user.
func (r *UserRepository) UpdateAvatarURL(username, avatarURL string) error {
	result := r.db.Model(&domain.User{}).Where("username = ?", username).Update("avatar_url", avatarURL)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
