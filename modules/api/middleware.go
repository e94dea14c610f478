package api

import (
	"strings"

	"github.com/example/chat-relay/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	// UserContextKey is the key used to store token claims in the Fiber
	// context.
	UserContextKey = "user"
)

// BearerToken extracts the token from an Authorization header value.
// Returns an empty string when the header is missing or not Bearer-shaped.
func BearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// AuthMiddleware creates a middleware that validates bearer tokens.
func AuthMiddleware(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Bearer token is required",
			})
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
				Error:   "forbidden",
				Message: "Invalid or expired token",
			})
		}

		c.Locals(UserContextKey, claims)
		return c.Next()
	}
}
