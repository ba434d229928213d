package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const refreshKeyPrefix = "jwt:refresh:"

// RefreshKey is the ledger key of a refresh session record.
func RefreshKey(correlationID string) string {
	return refreshKeyPrefix + correlationID
}

// SessionService owns login, refresh rotation and logout. The refresh ledger
// in KV is the only authority on whether a refresh token is still live.
type SessionService struct {
	Store   store.Store
	KV      kv.Store
	Issuer  *jwtx.Issuer
	Cipher  *cryptox.Cipher
	Hasher  cryptox.PasswordHasher
	Keying  domain.RefreshKeying
	Metrics *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

// burnCompare runs a password comparison against a throwaway hash so unknown
// emails cost the same as a wrong password.
func (s *SessionService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("gatekeeper-unknown-account")
	})
	if s.dummyHash != "" {
		_ = s.Hasher.Compare(password, s.dummyHash)
	}
}

func identityOf(u domain.User) jwtx.Identity {
	return jwtx.Identity{Subject: u.ID, Email: u.Email, Name: u.DisplayName()}
}

// CorrelationID picks the ledger id for a verified refresh token.
func (s *SessionService) CorrelationID(c jwtx.Claims) string {
	if s.Keying == domain.RefreshKeyingEmail {
		return c.Email
	}
	return c.ID
}

// Login checks credentials. Accounts with two-factor enabled get a short
// lived challenge token instead of a session.
func (s *SessionService) Login(ctx context.Context, email, password string) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.burnCompare(password)
			s.Metrics.Login(metrics.ResultRejected)
			return domain.LoginResult{}, ErrInvalidCredentials
		}
		s.Metrics.Login(metrics.ResultError)
		return domain.LoginResult{}, err
	}

	if err := s.Hasher.Compare(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Warn("stored password hash unreadable", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		s.Metrics.Login(metrics.ResultRejected)
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	if !user.Verified {
		s.Metrics.Login(metrics.ResultRejected)
		return domain.LoginResult{}, ErrUnverified
	}

	if user.TwoFactorEnabled {
		challenge, _, err := s.Issuer.Issue(jwtx.KindTwoFactor, identityOf(user))
		if err != nil {
			s.Metrics.Login(metrics.ResultError)
			return domain.LoginResult{}, err
		}
		l.Info("login awaiting second factor", slog.String("user_id", user.ID))
		s.Metrics.Login(metrics.ResultOK)
		return domain.LoginResult{OTPRequired: true, AccessToken: challenge}, nil
	}

	pair, err := s.IssuePair(ctx, user)
	if err != nil {
		s.Metrics.Login(metrics.ResultError)
		return domain.LoginResult{}, err
	}

	l.Info("login succeeded", slog.String("user_id", user.ID))
	s.Metrics.Login(metrics.ResultOK)
	return domain.LoginResult{
		OTPRequired:  false,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// IssuePair mints an access and refresh token and records the refresh
// session. The record holds an encrypted copy of the token, never the token
// itself.
func (s *SessionService) IssuePair(ctx context.Context, user domain.User) (domain.TokenPair, error) {
	id := identityOf(user)

	access, _, err := s.Issuer.Issue(jwtx.KindAccess, id)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh, claims, err := s.Issuer.Issue(jwtx.KindRefresh, id)
	if err != nil {
		return domain.TokenPair{}, err
	}

	sealed, err := s.Cipher.Encrypt(refresh)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("seal refresh token: %w", err)
	}

	key := RefreshKey(s.CorrelationID(claims))
	if err := s.KV.Set(ctx, key, sealed, s.Issuer.TTL(jwtx.KindRefresh)); err != nil {
		return domain.TokenPair{}, fmt.Errorf("record refresh session: %w", err)
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RotateRefresh consumes the refresh record behind token and issues a new
// pair. The record is removed with a compare-and-delete on the sealed copy
// that matched token, so of several concurrent callers presenting the same
// token only one proceeds, even when every rotation reuses the same key.
func (s *SessionService) RotateRefresh(ctx context.Context, token string, claims jwtx.Claims) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	key := RefreshKey(s.CorrelationID(claims))

	sealed, err := s.loadSession(ctx, key, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			l.Warn("refresh token replayed or already rotated")
			s.Metrics.Rotation(metrics.ResultRejected)
		} else {
			s.Metrics.Rotation(metrics.ResultError)
		}
		return domain.TokenPair{}, err
	}

	deleted, err := s.KV.DeleteIfEqual(ctx, key, sealed)
	if err != nil {
		s.Metrics.Rotation(metrics.ResultError)
		return domain.TokenPair{}, fmt.Errorf("consume refresh session: %w", err)
	}
	if !deleted {
		l.Warn("refresh token rotated concurrently")
		s.Metrics.Rotation(metrics.ResultRejected)
		return domain.TokenPair{}, ErrUnauthorized
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Metrics.Rotation(metrics.ResultRejected)
			return domain.TokenPair{}, ErrNotFound
		}
		s.Metrics.Rotation(metrics.ResultError)
		return domain.TokenPair{}, err
	}

	pair, err := s.IssuePair(ctx, user)
	if err != nil {
		s.Metrics.Rotation(metrics.ResultError)
		return domain.TokenPair{}, err
	}

	s.Metrics.Rotation(metrics.ResultOK)
	return pair, nil
}

// Logout deletes the refresh record. Deleting an absent record is fine.
func (s *SessionService) Logout(ctx context.Context, correlationID string) error {
	if _, err := s.KV.Delete(ctx, RefreshKey(correlationID)); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeUser drops the single-session record of email. It only has an
// effect with email keying; jti keyed records simply expire.
func (s *SessionService) RevokeUser(ctx context.Context, email string) error {
	if s.Keying != domain.RefreshKeyingEmail {
		return nil
	}
	return s.Logout(ctx, domain.NormalizeEmail(email))
}

// RefreshValidator is the TokenValidator for refresh tokens: on top of the
// signature it requires a live ledger record holding the same token.
type RefreshValidator struct {
	Sessions *SessionService
}

var _ jwtx.TokenValidator = (*RefreshValidator)(nil)

func (v *RefreshValidator) Kind() jwtx.Kind { return jwtx.KindRefresh }

func (v *RefreshValidator) Validate(ctx context.Context, token string) (jwtx.Claims, error) {
	s := v.Sessions

	claims, err := s.Issuer.Verify(jwtx.KindRefresh, token)
	if err != nil {
		return jwtx.Claims{}, ErrUnauthorized
	}

	if _, err := s.loadSession(ctx, RefreshKey(s.CorrelationID(claims)), token); err != nil {
		return jwtx.Claims{}, err
	}

	return claims, nil
}

// loadSession returns the sealed record under key if it holds token.
// A missing, unreadable or mismatched record is ErrUnauthorized.
func (s *SessionService) loadSession(ctx context.Context, key, token string) (string, error) {
	sealed, err := s.KV.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("load refresh session: %w", err)
	}

	stored, err := s.Cipher.Decrypt(sealed)
	if err != nil {
		slogx.FromContext(ctx).Warn("refresh session record unreadable", slog.Any("error", err))
		return "", ErrUnauthorized
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return "", ErrUnauthorized
	}
	return sealed, nil
}
