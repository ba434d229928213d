package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) refreshClaims(t *testing.T, refresh string) jwtx.Claims {
	t.Helper()
	claims, err := f.sessions.Issuer.Verify(jwtx.KindRefresh, refresh)
	require.NoError(t, err)
	return claims
}

func (f *fixture) correlationID(t *testing.T, refresh string) string {
	t.Helper()
	return f.sessions.CorrelationID(f.refreshClaims(t, refresh))
}

// countingHasher records how often Compare runs.
type countingHasher struct {
	cryptox.PasswordHasher
	compares atomic.Int32
}

func (h *countingHasher) Compare(password, encodedHash string) error {
	h.compares.Add(1)
	return h.PasswordHasher.Compare(password, encodedHash)
}

func TestLoginIssuesPairAndRecordsRefreshSession(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	require.False(t, res.OTPRequired)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)

	access, err := f.sessions.Issuer.Verify(jwtx.KindAccess, res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", access.Email)
	require.Equal(t, "Ada Lovelace", access.Name)

	ttl, err := f.kv.TTL(ctx, RefreshKey(f.correlationID(t, res.RefreshToken)))
	require.NoError(t, err)
	require.Equal(t, 7*24*time.Hour, ttl)

	// The ledger holds an encrypted copy, never the raw token.
	sealed, err := f.kv.Get(ctx, RefreshKey(f.correlationID(t, res.RefreshToken)))
	require.NoError(t, err)
	require.NotEqual(t, res.RefreshToken, sealed)
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")

	_, err := f.sessions.Login(ctx, "ghost@x.com", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.sessions.Login(ctx, "a@x.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	u := f.user(t, "a@x.com")
	_, err = f.store.Users().UpdateUser(ctx, u.ID, domain.UserUpdate{Verified: domain.Ptr(false)})
	require.NoError(t, err)

	_, err = f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.ErrorIs(t, err, ErrUnverified)

	require.Zero(t, f.kv.Len())
}

func TestLoginComparesPasswordForUnknownEmail(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")

	hasher := &countingHasher{PasswordHasher: f.hasher}
	f.sessions.Hasher = hasher

	_, err := f.sessions.Login(ctx, "ghost@x.com", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.EqualValues(t, 1, hasher.compares.Load())

	_, err = f.sessions.Login(ctx, "a@x.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.EqualValues(t, 2, hasher.compares.Load())
}

func TestLoginWithTwoFactorReturnsChallengeOnly(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")
	f.enableTwoFactor(t, "a@x.com")

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	require.True(t, res.OTPRequired)
	require.Empty(t, res.RefreshToken)

	_, err = f.sessions.Issuer.Verify(jwtx.KindTwoFactor, res.AccessToken)
	require.NoError(t, err)

	// A challenge is not an access token.
	_, err = f.sessions.Issuer.Verify(jwtx.KindAccess, res.AccessToken)
	require.ErrorIs(t, err, jwtx.ErrInvalid)

	require.Zero(t, f.kv.Len())
}

func TestRotateRefreshIsSingleUse(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	oldID := f.correlationID(t, res.RefreshToken)
	claims := f.refreshClaims(t, res.RefreshToken)

	pair, err := f.sessions.RotateRefresh(ctx, res.RefreshToken, claims)
	require.NoError(t, err)
	require.NotEqual(t, res.RefreshToken, pair.RefreshToken)

	_, err = f.kv.Get(ctx, RefreshKey(oldID))
	require.Error(t, err)
	_, err = f.kv.Get(ctx, RefreshKey(f.correlationID(t, pair.RefreshToken)))
	require.NoError(t, err)

	_, err = f.sessions.RotateRefresh(ctx, res.RefreshToken, claims)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 1, f.kv.Len())
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	claims := f.refreshClaims(t, res.RefreshToken)

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.sessions.RotateRefresh(ctx, res.RefreshToken, claims); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrUnauthorized)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, 1, f.kv.Len())
}

func TestRotateRefreshForVanishedUser(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	u := f.seedUser(t, "a@x.com", "hunter22")

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	claims := f.refreshClaims(t, res.RefreshToken)

	require.NoError(t, f.store.Users().DeleteUser(ctx, u.ID))

	_, err = f.sessions.RotateRefresh(ctx, res.RefreshToken, claims)
	require.ErrorIs(t, err, ErrNotFound)

	// The record is consumed even though no new pair was issued.
	require.Zero(t, f.kv.Len())
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	id := f.correlationID(t, res.RefreshToken)

	require.NoError(t, f.sessions.Logout(ctx, id))
	require.NoError(t, f.sessions.Logout(ctx, id))
	require.Zero(t, f.kv.Len())

	_, err = f.sessions.RotateRefresh(ctx, res.RefreshToken, f.refreshClaims(t, res.RefreshToken))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshValidator(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")
	v := &RefreshValidator{Sessions: f.sessions}
	require.Equal(t, jwtx.KindRefresh, v.Kind())

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)

	t.Run("live token passes", func(t *testing.T) {
		claims, err := v.Validate(ctx, res.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, "a@x.com", claims.Email)
	})

	t.Run("access token is rejected", func(t *testing.T) {
		_, err := v.Validate(ctx, res.AccessToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("record mismatch is rejected", func(t *testing.T) {
		other, err := f.cipher.Encrypt("some-other-token")
		require.NoError(t, err)
		key := RefreshKey(f.correlationID(t, res.RefreshToken))
		orig, err := f.kv.Get(ctx, key)
		require.NoError(t, err)

		require.NoError(t, f.kv.Set(ctx, key, other, time.Hour))
		_, err = v.Validate(ctx, res.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthorized)

		require.NoError(t, f.kv.Set(ctx, key, "not-ciphertext", time.Hour))
		_, err = v.Validate(ctx, res.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthorized)

		require.NoError(t, f.kv.Set(ctx, key, orig, time.Hour))
	})

	t.Run("rotated token is rejected", func(t *testing.T) {
		_, err := f.sessions.RotateRefresh(ctx, res.RefreshToken, f.refreshClaims(t, res.RefreshToken))
		require.NoError(t, err)

		_, err = v.Validate(ctx, res.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestRefreshSessionExpires(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingToken)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")
	v := &RefreshValidator{Sessions: f.sessions}

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	key := RefreshKey(f.correlationID(t, res.RefreshToken))

	f.clock.Advance(7*24*time.Hour + time.Second)

	_, err = v.Validate(ctx, res.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.kv.Get(ctx, key)
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestEmailKeyingKeepsOneSessionPerUser(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingEmail)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")
	v := &RefreshValidator{Sessions: f.sessions}

	first, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	second, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)

	require.Equal(t, "a@x.com", f.correlationID(t, first.RefreshToken))
	require.Equal(t, 1, f.kv.Len())

	_, err = v.Validate(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = v.Validate(ctx, second.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.sessions.RevokeUser(ctx, "A@X.com"))
	_, err = v.Validate(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestEmailKeyingRotationOfValidatedTokenHasOneWinner(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingEmail)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")
	v := &RefreshValidator{Sessions: f.sessions}

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)

	// Both requests pass validation before either rotates.
	first, err := v.Validate(ctx, res.RefreshToken)
	require.NoError(t, err)
	second, err := v.Validate(ctx, res.RefreshToken)
	require.NoError(t, err)

	pair, err := f.sessions.RotateRefresh(ctx, res.RefreshToken, first)
	require.NoError(t, err)

	_, err = f.sessions.RotateRefresh(ctx, res.RefreshToken, second)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The winner's session survives the losing attempt.
	_, err = v.Validate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 1, f.kv.Len())
}

func TestEmailKeyingConcurrentRotationHasOneWinner(t *testing.T) {
	f := newFixture(t, domain.RefreshKeyingEmail)
	ctx := context.Background()
	f.seedUser(t, "a@x.com", "hunter22")

	res, err := f.sessions.Login(ctx, "a@x.com", "hunter22")
	require.NoError(t, err)
	claims := f.refreshClaims(t, res.RefreshToken)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.sessions.RotateRefresh(ctx, res.RefreshToken, claims); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrUnauthorized)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.Equal(t, 1, f.kv.Len())
}
