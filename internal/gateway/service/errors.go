package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
)

// Error categories. Handlers map these with errors.Is; the specific errors
// below wrap exactly one of them.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnverified            = errors.New("account not verified, complete email verification to sign in")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("user not found")
	ErrBadRequest            = errors.New("bad request")
	ErrTokenExpiredOrInvalid = errors.New("token invalid or expired")
	ErrDecryptionFailed      = cryptox.ErrDecryptionFailed
)

var (
	ErrTwoFactorAlreadyEnabled = fmt.Errorf("%w: two-factor authentication is already enabled", ErrBadRequest)
	ErrTwoFactorNotEnabled     = fmt.Errorf("%w: two-factor authentication is not enabled", ErrBadRequest)
	ErrTwoFactorSecretMissing  = fmt.Errorf("%w: no two-factor secret on record", ErrBadRequest)
	ErrEmailTaken              = fmt.Errorf("%w: email already registered", ErrBadRequest)
	ErrPasswordMismatch        = fmt.Errorf("%w: passwords do not match", ErrBadRequest)
	ErrInvalidOTP              = fmt.Errorf("%w: invalid one-time code", ErrUnauthorized)
)

// User facing results.
const (
	MsgRegistered        = "User registered successfully. A verification link has been sent to your email."
	MsgEmailVerified     = "Email verified successfully."
	MsgVerificationSent  = "If an account is registered with this email, a verification link has been sent to it."
	MsgResetLinkSent     = "If an account is registered with this email, a password reset link has been sent to it."
	MsgPasswordReset     = "Password reset successfully."
	MsgTwoFactorEnabled  = "Two-factor authentication enabled successfully."
	MsgTwoFactorDisabled = "Two-factor authentication disabled successfully."
	MsgLoggedOut         = "Logged out successfully."
	MsgAccountDeleted    = "Account deleted successfully."
)
