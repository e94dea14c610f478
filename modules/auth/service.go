package auth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	domain "github.com/example/chat-relay/domain/user"
)

// Validation limits for credentials.
const (
	MaxUsernameLength = 50
	MaxPasswordLength = 72 // bcrypt input limit
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidUsername is returned when the username is empty or malformed.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when the password is empty or too long.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service handles registration, login, and token verification.
type Service struct {
	repo   *UserRepository
	hasher *PasswordHasher
	jwt    *JWTManager
}

// NewService creates a new Service.
func NewService(repo *UserRepository, hasher *PasswordHasher, jwt *JWTManager) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		jwt:    jwt,
	}
}

// ValidateUsername checks a username against the registration rules.
func ValidateUsername(username string) error {
	if username == "" || len(username) > MaxUsernameLength || !utf8.ValidString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword checks a password against the registration rules.
func ValidatePassword(password string) error {
	if password == "" || len(password) > MaxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// Register creates a new user account.
func (s *Service) Register(_ context.Context, username, password string) (*domain.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	exists, err := s.repo.UsernameExists(username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username existence: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: passwordHash,
		AvatarURL:    domain.DefaultAvatarURL,
	}

	if err := s.repo.Create(user); err != nil {
		return nil, err
	}

	return user, nil
}

// Login authenticates a user and returns a signed token.
func (s *Service) Login(_ context.Context, username, password string) (string, error) {
	user, err := s.repo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := s.jwt.Generate(user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// ValidateToken verifies a signed token and returns its claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.jwt.Validate(token)
}

// ListUsers returns the public profile of every registered user.
func (s *Service) ListUsers(_ context.Context) ([]domain.Profile, error) {
	users, err := s.repo.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	profiles := make([]domain.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, domain.Profile{
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
		})
	}
	return profiles, nil
}

// SetAvatarURL stores the avatar URL for the named user.
func (s *Service) SetAvatarURL(_ context.Context, username, avatarURL string) error {
	return s.repo.UpdateAvatarURL(username, avatarURL)
}
