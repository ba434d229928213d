// Package storetest holds the behaviour every store driver must share.
package storetest

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newUser(email string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
	}
}

// Run exercises a migrated, empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := newUser("Ada@Example.com ")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		byEmail, err := s.Users().GetUserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
		require.Equal(t, "ada@example.com", byEmail.Email)
		require.False(t, byEmail.Verified)
		require.False(t, byEmail.TwoFactorEnabled)
		require.Nil(t, byEmail.TwoFactorSecret)
		require.False(t, byEmail.CreatedAt.IsZero())

		byID, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, byEmail.Email, byID.Email)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Users().GetUserByEmail(context.Background(), "ghost@x.com")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Users().GetUserByID(context.Background(), "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Users().CreateUser(ctx, newUser("a@x.com")))
		err := s.Users().CreateUser(ctx, newUser("A@X.com"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := newUser("a@x.com")
		require.NoError(t, s.Users().CreateUser(ctx, u))

		updated, err := s.Users().UpdateUser(ctx, u.ID, domain.UserUpdate{
			Verified:        domain.Ptr(true),
			TwoFactorSecret: domain.Ptr("sealed-seed"),
		})
		require.NoError(t, err)
		require.True(t, updated.Verified)
		require.False(t, updated.TwoFactorEnabled)
		require.NotNil(t, updated.TwoFactorSecret)
		require.Equal(t, "sealed-seed", *updated.TwoFactorSecret)
		require.Equal(t, u.FirstName, updated.FirstName)

		updated, err = s.Users().UpdateUser(ctx, u.ID, domain.UserUpdate{
			TwoFactorEnabled: domain.Ptr(false),
			TwoFactorSecret:  domain.Ptr(""),
		})
		require.NoError(t, err)
		require.Nil(t, updated.TwoFactorSecret)
		require.True(t, updated.Verified)

		unchanged, err := s.Users().UpdateUser(ctx, u.ID, domain.UserUpdate{})
		require.NoError(t, err)
		require.Equal(t, updated.ID, unchanged.ID)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Users().UpdateUser(context.Background(), "nope", domain.UserUpdate{Verified: domain.Ptr(true)})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := newUser("a@x.com")
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.NoError(t, s.Users().DeleteUser(ctx, u.ID))

		_, err := s.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.Users().DeleteUser(ctx, u.ID), store.ErrNotFound)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
	})
}
