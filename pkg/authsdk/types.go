package authsdk

import "time"

// ============================================================================
// Envelopes
// ============================================================================

// Envelope is the body of every successful response.
type Envelope[T any] struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       T      `json:"data"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// ============================================================================
// Auth
// ============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /v1/auth/login. When OTPRequired is true
// AccessToken is a two-factor challenge token, valid only for
// POST /v1/auth/verify-otp, and RefreshToken is empty.
type LoginResponse struct {
	OTPRequired  bool   `json:"otpRequired"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TokenPair is a full session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// OTPRequest carries a six digit TOTP code.
type OTPRequest struct {
	Code string `json:"code"`
}

// TwoFactorSetupResponse is the enrolment material for an authenticator app.
type TwoFactorSetupResponse struct {
	// QRCode is a data:image/png;base64 URL of the otpauth URI.
	QRCode string `json:"qrcode"`

	// Secret is the base32 seed for manual entry.
	Secret string `json:"secret"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is posted to /v1/auth/reset-password?token=...
type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ============================================================================
// Users
// ============================================================================

type RegisterRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UserProfile is the public view of an account.
type UserProfile struct {
	ID               string    `json:"id"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	Verified         bool      `json:"isVerified"`
	TwoFactorEnabled bool      `json:"is2faEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the user store connection status
	Database string `json:"database"`

	// KV indicates the token ledger connection status
	KV string `json:"kv"`
}
