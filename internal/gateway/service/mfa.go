package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/otpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// MFAService enrolls, confirms and disables TOTP two-factor authentication
// and completes logins that stopped at the second factor.
type MFAService struct {
	Store    store.Store
	Sessions *SessionService
	Cipher   *cryptox.Cipher
	OTP      otpx.Provider
	Now      func() time.Time
	Metrics  *metrics.Metrics
}

type twoFactorState int

const (
	requireEnabled twoFactorState = iota + 1
	requireDisabled
)

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MFAService) loadUser(ctx context.Context, email string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// checkCode loads the user, enforces the expected two-factor state and
// verifies code against the stored seed.
func (s *MFAService) checkCode(ctx context.Context, op, code, email string, want twoFactorState) (domain.User, error) {
	user, err := s.loadUser(ctx, email)
	if err != nil {
		return domain.User{}, err
	}

	switch {
	case want == requireEnabled && !user.TwoFactorEnabled:
		return domain.User{}, ErrTwoFactorNotEnabled
	case want == requireDisabled && user.TwoFactorEnabled:
		return domain.User{}, ErrTwoFactorAlreadyEnabled
	}

	if !user.HasTwoFactorSecret() {
		return domain.User{}, ErrTwoFactorSecretMissing
	}

	seed, err := s.Cipher.Decrypt(*user.TwoFactorSecret)
	if err != nil {
		slogx.FromContext(ctx).Error("two-factor seed unreadable", slog.String("user_id", user.ID), slog.Any("error", err))
		s.Metrics.OTPCheck(op, metrics.ResultError)
		return domain.User{}, ErrDecryptionFailed
	}

	if !s.OTP.Verify(seed, code, s.now()) {
		s.Metrics.OTPCheck(op, metrics.ResultRejected)
		return domain.User{}, ErrInvalidOTP
	}

	s.Metrics.OTPCheck(op, metrics.ResultOK)
	return user, nil
}

// Verify2FACode completes a login that was answered with a 2fa challenge.
func (s *MFAService) Verify2FACode(ctx context.Context, code, email string) (domain.TokenPair, error) {
	user, err := s.checkCode(ctx, "verify", code, email, requireEnabled)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.Sessions.IssuePair(ctx, user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	slogx.FromContext(ctx).Info("second factor accepted", slog.String("user_id", user.ID))
	return pair, nil
}

// Initiate2FASetup stores a fresh encrypted seed without enabling two-factor.
// Calling it again before confirmation replaces the pending seed.
func (s *MFAService) Initiate2FASetup(ctx context.Context, email string) (domain.TwoFactorSetup, error) {
	user, err := s.loadUser(ctx, email)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}
	if user.TwoFactorEnabled {
		return domain.TwoFactorSetup{}, ErrTwoFactorAlreadyEnabled
	}

	secret, err := s.OTP.GenerateSecret(user.Email)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}

	sealed, err := s.Cipher.Encrypt(secret.Base32)
	if err != nil {
		return domain.TwoFactorSetup{}, fmt.Errorf("seal totp secret: %w", err)
	}

	if _, err := s.Store.Users().UpdateUser(ctx, user.ID, domain.UserUpdate{TwoFactorSecret: &sealed}); err != nil {
		return domain.TwoFactorSetup{}, fmt.Errorf("store totp secret: %w", err)
	}

	qr, err := otpx.QRDataURL(secret.URL)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}

	slogx.FromContext(ctx).Info("two-factor setup started", slog.String("user_id", user.ID))
	return domain.TwoFactorSetup{QRCode: qr, Secret: secret.Base32}, nil
}

// Confirm2FASetup enables two-factor once the user proves the pending seed.
func (s *MFAService) Confirm2FASetup(ctx context.Context, code, email string) (string, error) {
	user, err := s.checkCode(ctx, "confirm", code, email, requireDisabled)
	if err != nil {
		return "", err
	}

	if _, err := s.Store.Users().UpdateUser(ctx, user.ID, domain.UserUpdate{TwoFactorEnabled: domain.Ptr(true)}); err != nil {
		return "", fmt.Errorf("enable two-factor: %w", err)
	}

	slogx.FromContext(ctx).Info("two-factor enabled", slog.String("user_id", user.ID))
	return MsgTwoFactorEnabled, nil
}

// Disable2FA turns two-factor off and clears the seed.
func (s *MFAService) Disable2FA(ctx context.Context, code, email string) (string, error) {
	user, err := s.checkCode(ctx, "disable", code, email, requireEnabled)
	if err != nil {
		return "", err
	}

	upd := domain.UserUpdate{
		TwoFactorEnabled: domain.Ptr(false),
		TwoFactorSecret:  domain.Ptr(""),
	}
	if _, err := s.Store.Users().UpdateUser(ctx, user.ID, upd); err != nil {
		return "", fmt.Errorf("disable two-factor: %w", err)
	}

	slogx.FromContext(ctx).Info("two-factor disabled", slog.String("user_id", user.ID))
	return MsgTwoFactorDisabled, nil
}
