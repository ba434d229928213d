package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/email"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// AccountService covers the account flows that are driven by emailed links:
// registration, email verification and password reset.
type AccountService struct {
	Store    store.Store
	Hasher   cryptox.PasswordHasher
	Actions  *ActionTokenService
	Sessions *SessionService
	Mailer   email.Sender

	// Link bases; the token is appended as ?token=<token>.
	VerifyEmailURL   string
	ResetPasswordURL string
}

// RegisterInput is the self-service signup form.
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

func actionLink(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + token
}

func (s *AccountService) findByEmail(ctx context.Context, addr string) (domain.User, bool, error) {
	user, err := s.Store.Users().GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return user, true, nil
}

// Register creates an unverified account and mails a verification link.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.Profile, error) {
	if in.Password != in.ConfirmPassword {
		return domain.Profile{}, ErrPasswordMismatch
	}

	addr := domain.NormalizeEmail(in.Email)
	if _, found, err := s.findByEmail(ctx, addr); err != nil {
		return domain.Profile{}, err
	} else if found {
		return domain.Profile{}, ErrEmailTaken
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.NewAt(now).String(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        addr,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Profile{}, ErrEmailTaken
		}
		return domain.Profile{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		return domain.Profile{}, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	return user.Profile(), nil
}

func (s *AccountService) sendVerification(ctx context.Context, user domain.User) error {
	token, err := s.Actions.Issue(ctx, domain.ActionEmailVerify, user.Email)
	if err != nil {
		return err
	}

	msg, err := email.VerificationMessage(user.Email, user.FirstName, actionLink(s.VerifyEmailURL, token))
	if err != nil {
		return err
	}

	s.Mailer.Emit(ctx, email.EventUserCreated, msg)
	return nil
}

// VerifyEmail redeems an email_verify token and marks the account verified.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (string, error) {
	subject, err := s.Actions.Redeem(ctx, domain.ActionEmailVerify, token)
	if err != nil {
		return "", err
	}

	user, found, err := s.findByEmail(ctx, subject)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}

	if _, err := s.Store.Users().UpdateUser(ctx, user.ID, domain.UserUpdate{Verified: domain.Ptr(true)}); err != nil {
		return "", fmt.Errorf("mark verified: %w", err)
	}

	slogx.FromContext(ctx).Info("email verified", slog.String("user_id", user.ID))
	return MsgEmailVerified, nil
}

// ResendVerification answers identically whether or not the address belongs
// to an unverified account.
func (s *AccountService) ResendVerification(ctx context.Context, addr string) (string, error) {
	user, found, err := s.findByEmail(ctx, domain.NormalizeEmail(addr))
	if err != nil {
		return "", err
	}

	if !found || user.Verified {
		slogx.FromContext(ctx).Debug("verification resend skipped")
		return MsgVerificationSent, nil
	}

	if err := s.sendVerification(ctx, user); err != nil {
		return "", err
	}
	return MsgVerificationSent, nil
}

// ForgotPassword answers identically whether or not the account exists.
func (s *AccountService) ForgotPassword(ctx context.Context, addr string) (string, error) {
	user, found, err := s.findByEmail(ctx, domain.NormalizeEmail(addr))
	if err != nil {
		return "", err
	}
	if !found {
		slogx.FromContext(ctx).Debug("password reset requested for unknown account")
		return MsgResetLinkSent, nil
	}

	token, err := s.Actions.Issue(ctx, domain.ActionResetPassword, user.Email)
	if err != nil {
		return "", err
	}

	msg, err := email.ResetPasswordMessage(user.Email, user.FirstName, actionLink(s.ResetPasswordURL, token))
	if err != nil {
		return "", err
	}
	s.Mailer.Emit(ctx, email.EventForgotPassword, msg)

	return MsgResetLinkSent, nil
}

// ResetPassword redeems a reset_password token and replaces the password.
func (s *AccountService) ResetPassword(ctx context.Context, token, password, confirm string) (string, error) {
	if password != confirm {
		return "", ErrPasswordMismatch
	}

	subject, err := s.Actions.Redeem(ctx, domain.ActionResetPassword, token)
	if err != nil {
		return "", err
	}

	user, found, err := s.findByEmail(ctx, subject)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.Store.Users().UpdateUser(ctx, user.ID, domain.UserUpdate{PasswordHash: &hash}); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}

	if err := s.Sessions.RevokeUser(ctx, user.Email); err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("password reset", slog.String("user_id", user.ID))
	return MsgPasswordReset, nil
}

func (s *AccountService) Profile(ctx context.Context, addr string) (domain.Profile, error) {
	user, found, err := s.findByEmail(ctx, addr)
	if err != nil {
		return domain.Profile{}, err
	}
	if !found {
		return domain.Profile{}, ErrNotFound
	}
	return user.Profile(), nil
}

// DeleteAccount removes the user, drops an email keyed session and mails a
// confirmation.
func (s *AccountService) DeleteAccount(ctx context.Context, addr string) (string, error) {
	user, found, err := s.findByEmail(ctx, addr)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}

	if err := s.Store.Users().DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("delete user: %w", err)
	}

	if err := s.Sessions.RevokeUser(ctx, user.Email); err != nil {
		return "", err
	}

	msg, err := email.AccountDeletedMessage(user.Email, user.FirstName)
	if err != nil {
		return "", err
	}
	s.Mailer.Emit(ctx, email.EventUserDeleted, msg)

	slogx.FromContext(ctx).Info("account deleted", slog.String("user_id", user.ID))
	return MsgAccountDeleted, nil
}
