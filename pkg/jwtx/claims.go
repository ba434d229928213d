package jwtx

import (
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs.
const (
	DefaultAccessTokenTTL    = 15 * time.Minute
	DefaultTwoFactorTokenTTL = 5 * time.Minute
	DefaultRefreshTokenTTL   = 7 * 24 * time.Hour
)

// Kind names one of the independent signing contexts.
type Kind string

const (
	KindAccess    Kind = "access"
	KindTwoFactor Kind = "2fa"
	KindRefresh   Kind = "refresh"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindTwoFactor, KindRefresh:
		return true
	}
	return false
}

// Identity is what every token says about its holder.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Claims are the claims carried by every gatekeeper token.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email"`
	Name  string `json:"name,omitempty"`

	// Kind is checked on verification on top of the per-kind secret, so a
	// token can never cross contexts even if two secrets were set equal.
	Kind Kind `json:"kind"`
}

// NewClaims builds claims for kind. Refresh tokens get a fresh jti that is
// used as the rotation correlation id.
func NewClaims(kind Kind, id Identity, ttl time.Duration, issuer string, now time.Time) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: id.Email,
		Name:  id.Name,
		Kind:  kind,
	}
	if kind == KindRefresh {
		c.ID = idx.NewAt(now).String()
	}
	return c
}

// Identity returns the identity embedded in the claims.
func (c *Claims) Identity() Identity {
	return Identity{Subject: c.Subject, Email: c.Email, Name: c.Name}
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrInvalid
	}

	return nil
}

// ValidateKind rejects tokens minted for a different context.
func (c *Claims) ValidateKind(expected Kind) error {
	if c.Kind != expected {
		return ErrInvalid
	}
	return nil
}
