package auth

import (
	"context"
	"fmt"
	"log"
	"os"

	domain "github.com/example/chat-relay/domain/user"
	"github.com/go-monolith/mono"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AuthModule provides the credential store and token service.
type AuthModule struct {
	db      *gorm.DB
	service *Service
	dbPath  string
}

// Compile-time interface checks.
var _ mono.Module = (*AuthModule)(nil)
var _ mono.HealthCheckableModule = (*AuthModule)(nil)

// NewModule creates a new AuthModule.
func NewModule() *AuthModule {
	dbPath := os.Getenv("AUTH_DB_PATH")
	if dbPath == "" {
		dbPath = "chat_users.db"
	}
	return &AuthModule{
		dbPath: dbPath,
	}
}

// Name returns the module name.
func (m *AuthModule) Name() string {
	return "auth"
}

// Start initializes the auth module.
func (m *AuthModule) Start(_ context.Context) error {
	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := db.AutoMigrate(&domain.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	repo := NewUserRepository(db)
	hasher := NewPasswordHasher()
	jwtManager := NewJWTManager(loadJWTConfig())

	m.service = NewService(repo, hasher, jwtManager)

	log.Printf("[auth] Module started (database: %s)", m.dbPath)
	return nil
}

// Stop shuts down the module.
func (m *AuthModule) Stop(_ context.Context) error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	log.Println("[auth] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *AuthModule) Health(_ context.Context) mono.HealthStatus {
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
		},
	}
}

// Service returns the auth service for modules wired from main.
func (m *AuthModule) Service() *Service {
	return m.service
}

// loadJWTConfig loads JWT configuration from environment variables.
func loadJWTConfig() JWTConfig {
	config := DefaultJWTConfig()

	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		config.SecretKey = secret
	}
	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		config.Issuer = issuer
	}

	return config
}
