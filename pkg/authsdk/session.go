package authsdk

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// Session represents an authenticated session. When the access token is
// rejected, a Session rotates its refresh token once and retries.
type Session struct {
	client *SDKClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewSession wraps an existing token pair.
func (c *SDKClient) NewSession(accessToken, refreshToken string) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

// Tokens returns the current token pair.
func (s *Session) Tokens() TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TokenPair{AccessToken: s.accessToken, RefreshToken: s.refreshToken}
}

// Refresh rotates the refresh token. Refresh tokens are single-use, so the
// rotation is serialised per Session.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, s.accessToken)
}

// refreshLocked rotates unless another caller already did so after stale
// was observed.
func (s *Session) refreshLocked(ctx context.Context, stale string) error {
	if s.accessToken != stale {
		return nil
	}
	if s.refreshToken == "" {
		return errors.New("authsdk: no refresh token")
	}

	pair, err := s.client.RefreshTokens(ctx, s.refreshToken)
	if err != nil {
		return err
	}

	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	return nil
}

// Logout revokes the refresh token, invalidating this session.
func (s *Session) Logout(ctx context.Context) (string, error) {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return "", errors.New("authsdk: no refresh token to revoke")
	}

	msg, err := s.client.Logout(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.refreshToken = ""
	s.mu.Unlock()
	return msg, nil
}

// authCall performs an access-token request, refreshing once on 401.
func authCall[T any](ctx context.Context, s *Session, method, path string, body any) (T, error) {
	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	res, err := call[T](ctx, s.client, method, path, body, token, http.StatusOK)
	if StatusCode(err) != http.StatusUnauthorized {
		return res, err
	}

	s.mu.Lock()
	rerr := s.refreshLocked(ctx, token)
	token = s.accessToken
	s.mu.Unlock()
	if rerr != nil {
		return res, err
	}

	return call[T](ctx, s.client, method, path, body, token, http.StatusOK)
}

// InitiateTwoFactor starts two-factor enrolment.
func (s *Session) InitiateTwoFactor(ctx context.Context) (*TwoFactorSetupResponse, error) {
	setup, err := authCall[TwoFactorSetupResponse](ctx, s, http.MethodGet, "/v1/auth/enable-2fa", nil)
	if err != nil {
		return nil, err
	}
	return &setup, nil
}

// ConfirmTwoFactor activates two-factor with a code from the pending seed.
func (s *Session) ConfirmTwoFactor(ctx context.Context, code string) (string, error) {
	return authCall[string](ctx, s, http.MethodPost, "/v1/auth/confirm-2fa", OTPRequest{Code: code})
}

// DisableTwoFactor turns two-factor off.
func (s *Session) DisableTwoFactor(ctx context.Context, code string) (string, error) {
	return authCall[string](ctx, s, http.MethodPost, "/v1/auth/disable-2fa", OTPRequest{Code: code})
}

// Profile returns the signed-in user.
func (s *Session) Profile(ctx context.Context) (*UserProfile, error) {
	p, err := authCall[UserProfile](ctx, s, http.MethodGet, "/v1/users/me", nil)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteAccount removes the signed-in user.
func (s *Session) DeleteAccount(ctx context.Context) (string, error) {
	return authCall[string](ctx, s, http.MethodDelete, "/v1/users/me", nil)
}
