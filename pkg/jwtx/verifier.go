package jwtx

import (
	"context"
	"errors"
)

var (
	// ErrInvalid covers bad signatures, wrong kinds and malformed tokens.
	ErrInvalid = errors.New("jwtx: invalid token")
	ErrExpired = errors.New("jwtx: token expired")
)

// TokenValidator turns a presented bearer token into claims. There is one
// implementation per token kind and routes pick theirs explicitly.
type TokenValidator interface {
	Kind() Kind
	Validate(ctx context.Context, token string) (Claims, error)
}

// SignatureValidator checks signature, expiry and kind only. It is enough
// for access and 2fa challenge tokens; refresh tokens additionally need their
// session record checked.
type SignatureValidator struct {
	issuer *Issuer
	kind   Kind
}

func NewSignatureValidator(issuer *Issuer, kind Kind) *SignatureValidator {
	return &SignatureValidator{issuer: issuer, kind: kind}
}

func (v *SignatureValidator) Kind() Kind { return v.kind }

func (v *SignatureValidator) Validate(_ context.Context, token string) (Claims, error) {
	return v.issuer.Verify(v.kind, token)
}
