package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/metrics"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// ActionTokenService issues single-use tokens for email verification and
// password reset. Each domain keeps two keys per live token:
//
//	<domain>:token:<token> -> subject
//	<domain>:user:<subject> -> token
//
// so a subject never has more than one live token per domain.
type ActionTokenService struct {
	KV      kv.Store
	TTL     time.Duration
	Metrics *metrics.Metrics
}

func tokenKey(d domain.ActionDomain, token string) string {
	return string(d) + ":token:" + token
}

func userKey(d domain.ActionDomain, subject string) string {
	return string(d) + ":user:" + subject
}

func (s *ActionTokenService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return domain.ActionTokenTTL
}

// Issue supersedes any live token of subject in d and returns a new one.
func (s *ActionTokenService) Issue(ctx context.Context, d domain.ActionDomain, subject string) (string, error) {
	old, err := s.KV.Get(ctx, userKey(d, subject))
	switch {
	case err == nil:
		if _, err := s.KV.Delete(ctx, tokenKey(d, old)); err != nil {
			s.Metrics.ActionToken(string(d), "issue", metrics.ResultError)
			return "", fmt.Errorf("supersede action token: %w", err)
		}
	case !errors.Is(err, kv.ErrNotFound):
		s.Metrics.ActionToken(string(d), "issue", metrics.ResultError)
		return "", fmt.Errorf("lookup action token: %w", err)
	}

	token, err := cryptox.GenerateHexToken(cryptox.TokenSize256)
	if err != nil {
		s.Metrics.ActionToken(string(d), "issue", metrics.ResultError)
		return "", err
	}

	ttl := s.ttl()
	if err := s.KV.Set(ctx, tokenKey(d, token), subject, ttl); err != nil {
		s.Metrics.ActionToken(string(d), "issue", metrics.ResultError)
		return "", fmt.Errorf("store action token: %w", err)
	}
	if err := s.KV.Set(ctx, userKey(d, subject), token, ttl); err != nil {
		s.Metrics.ActionToken(string(d), "issue", metrics.ResultError)
		return "", fmt.Errorf("store action token owner: %w", err)
	}

	s.Metrics.ActionToken(string(d), "issue", metrics.ResultOK)
	return token, nil
}

// Redeem consumes token and returns its subject. The read and delete are one
// atomic step, so a token redeems at most once.
func (s *ActionTokenService) Redeem(ctx context.Context, d domain.ActionDomain, token string) (string, error) {
	if token == "" {
		s.Metrics.ActionToken(string(d), "redeem", metrics.ResultRejected)
		return "", ErrTokenExpiredOrInvalid
	}

	subject, err := s.KV.GetDel(ctx, tokenKey(d, token))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			s.Metrics.ActionToken(string(d), "redeem", metrics.ResultRejected)
			return "", ErrTokenExpiredOrInvalid
		}
		s.Metrics.ActionToken(string(d), "redeem", metrics.ResultError)
		return "", fmt.Errorf("redeem action token: %w", err)
	}

	// The token is already spent; a stale owner mapping only lingers until
	// its TTL. A newer token that replaced the mapping is left alone.
	if _, err := s.KV.DeleteIfEqual(ctx, userKey(d, subject), token); err != nil {
		slogx.FromContext(ctx).Warn("action token owner not cleared",
			slog.String("domain", string(d)),
			slog.Any("error", err),
		)
	}

	s.Metrics.ActionToken(string(d), "redeem", metrics.ResultOK)
	return subject, nil
}
