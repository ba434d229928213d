package domain

import "time"

// RefreshKeying selects how refresh session records are keyed in the ledger.
type RefreshKeying string

const (
	// RefreshKeyingToken keys each record by the refresh token's jti, so a
	// user can hold several sessions (one per device).
	RefreshKeyingToken RefreshKeying = "token"

	// RefreshKeyingEmail keys the record by email; a new login replaces the
	// previous session on every device.
	RefreshKeyingEmail RefreshKeying = "email"
)

func (k RefreshKeying) Valid() bool {
	return k == RefreshKeyingToken || k == RefreshKeyingEmail
}

// TokenPair is a full session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned by login. When OTPRequired is set, AccessToken is a
// 2fa challenge token and RefreshToken is empty.
type LoginResult struct {
	OTPRequired  bool   `json:"otpRequired"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TwoFactorSetup carries the enrolment material for an authenticator app.
type TwoFactorSetup struct {
	QRCode string `json:"qrcode"` // data:image/png;base64,...
	Secret string `json:"secret"` // base32 seed for manual entry
}

// ActionDomain namespaces single-use action tokens.
type ActionDomain string

const (
	ActionEmailVerify   ActionDomain = "email_verify"
	ActionResetPassword ActionDomain = "reset_password"
)

// ActionTokenTTL bounds every action token pair.
const ActionTokenTTL = 5 * time.Minute
