package domain

import (
	"strings"
	"time"
)

type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string // unique, stored lower-cased
	PasswordHash string // argon2 encoded
	Verified     bool

	TwoFactorEnabled bool
	TwoFactorSecret  *string // encrypted TOTP seed, set during setup before activation
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DisplayName is embedded in tokens as the "name" claim.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasTwoFactorSecret reports whether a (possibly pending) seed is stored.
func (u User) HasTwoFactorSecret() bool {
	return u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// UserUpdate is a partial update; nil fields are left untouched.
type UserUpdate struct {
	FirstName        *string
	LastName         *string
	PasswordHash     *string
	Verified         *bool
	TwoFactorEnabled *bool

	// TwoFactorSecret set to an empty string clears the stored seed.
	TwoFactorSecret *string
}

func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.PasswordHash == nil &&
		u.Verified == nil && u.TwoFactorEnabled == nil && u.TwoFactorSecret == nil
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Profile is the public view of a user.
type Profile struct {
	ID               string    `json:"id"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	Verified         bool      `json:"isVerified"`
	TwoFactorEnabled bool      `json:"is2faEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:               u.ID,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Email:            u.Email,
		Verified:         u.Verified,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
}

func Ptr[T any](v T) *T { return &v }
