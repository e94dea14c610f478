package api

// CredentialsRequest carries a username/password pair for register and
// login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	Message string `json:"message"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Message  string `json:"message"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

// UploadURLRequest asks for a presigned upload URL for the given content
// type.
type UploadURLRequest struct {
	FileType string `json:"fileType"`
}

// UploadURLResponse carries a presigned PUT URL and the resulting public
// file URL.
type UploadURLResponse struct {
	PresignedURL string `json:"presignedUrl"`
	FileURL      string `json:"fileUrl"`
}

// AvatarUploadResponse is returned when preparing an avatar upload; the
// avatar URL is persisted on the profile before the client uploads.
type AvatarUploadResponse struct {
	Message      string `json:"message"`
	PresignedURL string `json:"presignedUrl"`
	AvatarURL    string `json:"avatar_url"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
