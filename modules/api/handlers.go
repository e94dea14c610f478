package api

import (
	"errors"

	"github.com/example/chat-relay/modules/auth"
	"github.com/gofiber/fiber/v2"
)

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.hub.ClientCount(),
		},
	})
}

// registerHandler handles POST /api/register.
func (m *APIModule) registerHandler(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Username and password are required",
		})
	}

	if _, err := m.auth.Register(c.UserContext(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Error:   "conflict",
				Message: "Username already taken",
			})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
				Error:   "register_failed",
				Message: "Failed to register user",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(RegisterResponse{
		Message: "User registered successfully",
	})
}

// loginHandler handles POST /api/login.
func (m *APIModule) loginHandler(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Username and password are required",
		})
	}

	token, err := m.auth.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid username or password",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "login_failed",
			Message: "Failed to log in",
		})
	}

	return c.JSON(LoginResponse{
		Message:  "Login successful",
		Token:    token,
		Username: req.Username,
	})
}

// listUsersHandler handles GET /api/users.
func (m *APIModule) listUsersHandler(c *fiber.Ctx) error {
	users, err := m.auth.ListUsers(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list users",
		})
	}
	return c.JSON(users)
}

// uploadHandler handles POST /api/upload.
func (m *APIModule) uploadHandler(c *fiber.Ctx) error {
	presignedURL, fileURL, ok := m.issueUploadURL(c)
	if !ok {
		return nil
	}
	return c.JSON(UploadURLResponse{
		PresignedURL: presignedURL,
		FileURL:      fileURL,
	})
}

// avatarHandler handles POST /api/profile/avatar: it prepares the upload and
// persists the resulting avatar URL on the caller's profile.
func (m *APIModule) avatarHandler(c *fiber.Ctx) error {
	claims, ok := c.Locals(UserContextKey).(*auth.Claims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Missing identity",
		})
	}

	presignedURL, avatarURL, ok := m.issueUploadURL(c)
	if !ok {
		return nil
	}

	if err := m.auth.SetAvatarURL(c.UserContext(), claims.Username, avatarURL); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "update_failed",
			Message: "Failed to update avatar",
		})
	}

	return c.JSON(AvatarUploadResponse{
		Message:      "Upload URL ready",
		PresignedURL: presignedURL,
		AvatarURL:    avatarURL,
	})
}

// issueUploadURL parses the upload request and presigns an upload. On
// failure it writes the error response and reports ok=false.
func (m *APIModule) issueUploadURL(c *fiber.Ctx) (presignedURL, fileURL string, ok bool) {
	if m.uploads == nil {
		_ = c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "uploads_unavailable",
			Message: "Object storage is not configured",
		})
		return "", "", false
	}

	var req UploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return "", "", false
	}

	presignedURL, fileURL, err := m.uploads.IssueUploadURL(c.UserContext(), req.FileType)
	if err != nil {
		_ = c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "upload_failed",
			Message: "Failed to prepare upload",
		})
		return "", "", false
	}
	return presignedURL, fileURL, true
}
