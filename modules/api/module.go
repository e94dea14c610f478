package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/chat-relay/modules/auth"
	"github.com/example/chat-relay/modules/broadcast"
	"github.com/example/chat-relay/modules/relay"
	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	app         *fiber.App
	authModule  *auth.AuthModule
	relayModule *relay.RelayModule
	auth        *auth.Service
	relay       *relay.Service
	hub         *broadcast.Hub
	uploads     UploadURLIssuer
	port        string
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(authModule *auth.AuthModule, relayModule *relay.RelayModule) *APIModule {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	return &APIModule{
		authModule:  authModule,
		relayModule: relayModule,
		port:        port,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// SetHub sets the broadcast hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(ctx context.Context) error {
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}
	m.auth = m.authModule.Service()
	m.relay = m.relayModule.Service()
	if m.auth == nil || m.relay == nil {
		return fmt.Errorf("auth and relay services must be started first")
	}

	uploads, err := NewS3Presigner(ctx)
	switch {
	case err == nil:
		m.uploads = uploads
	case errors.Is(err, ErrUploadsNotConfigured):
		log.Println("[api] Uploads disabled: AWS_BUCKET_NAME not set")
	default:
		return fmt.Errorf("failed to configure uploads: %w", err)
	}

	m.app = fiber.New(fiber.Config{
		AppName:               "chat-relay",
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	m.app.Use(recover.New())
	m.app.Use(loggerMiddleware())

	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes()

	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	log.Printf("[api] HTTP server started on :%s", m.port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	return m.app.ShutdownWithContext(ctx)
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.port,
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	m.app.Get("/health", m.healthHandler)

	// WebSocket endpoint, gated by the token handshake.
	m.app.Use("/ws", m.wsHandshake)
	m.app.Get("/ws", websocket.New(m.handleWebSocket))

	api := m.app.Group("/api")
	api.Post("/register", m.registerHandler)
	api.Post("/login", m.loginHandler)

	authRequired := AuthMiddleware(m.auth)
	api.Get("/users", authRequired, m.listUsersHandler)
	api.Post("/upload", authRequired, m.uploadHandler)
	api.Post("/profile/avatar", authRequired, m.avatarHandler)
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware returns a Fiber middleware for request logging.
func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip logging for WebSocket upgrade requests
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		err := c.Next()
		log.Printf("[api] %s %s %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	}
}
