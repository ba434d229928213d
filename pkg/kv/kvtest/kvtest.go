// Package kvtest holds the behaviour every kv.Store driver must share.
package kvtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/kv"
	"github.com/stretchr/testify/require"
)

// Harness gives the suite a fresh store and a way to move its clock.
type Harness struct {
	Store   kv.Store
	Advance func(d time.Duration)
}

// Run exercises a driver against the kv.Store contract.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	t.Helper()

	t.Run("SetGet", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "jwt:refresh:a", "v1", time.Minute))
		got, err := h.Store.Get(ctx, "jwt:refresh:a")
		require.NoError(t, err)
		require.Equal(t, "v1", got)

		require.NoError(t, h.Store.Set(ctx, "jwt:refresh:a", "v2", time.Minute))
		got, err = h.Store.Get(ctx, "jwt:refresh:a")
		require.NoError(t, err)
		require.Equal(t, "v2", got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.Store.Get(context.Background(), "missing")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("DeleteReportsCount", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "k", "v", time.Minute))

		deleted, err := h.Store.Delete(ctx, "k")
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = h.Store.Delete(ctx, "k")
		require.NoError(t, err)
		require.False(t, deleted)
	})

	t.Run("DeleteIfEqual", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "k", "old", time.Minute))
		require.NoError(t, h.Store.Set(ctx, "k", "new", time.Minute))

		deleted, err := h.Store.DeleteIfEqual(ctx, "k", "old")
		require.NoError(t, err)
		require.False(t, deleted)
		got, err := h.Store.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "new", got)

		deleted, err = h.Store.DeleteIfEqual(ctx, "k", "new")
		require.NoError(t, err)
		require.True(t, deleted)
		_, err = h.Store.Get(ctx, "k")
		require.ErrorIs(t, err, kv.ErrNotFound)

		deleted, err = h.Store.DeleteIfEqual(ctx, "missing", "new")
		require.NoError(t, err)
		require.False(t, deleted)
	})

	t.Run("GetDelIsSingleUse", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "k", "v", time.Minute))

		got, err := h.Store.GetDel(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "v", got)

		_, err = h.Store.GetDel(ctx, "k")
		require.ErrorIs(t, err, kv.ErrNotFound)
		_, err = h.Store.Get(ctx, "k")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("TTL", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "k", "v", 7*24*time.Hour))
		ttl, err := h.Store.TTL(ctx, "k")
		require.NoError(t, err)
		require.InDelta(t, float64(7*24*time.Hour), float64(ttl), float64(time.Second))

		require.NoError(t, h.Store.Set(ctx, "forever", "v", 0))
		ttl, err = h.Store.TTL(ctx, "forever")
		require.NoError(t, err)
		require.Zero(t, ttl)

		_, err = h.Store.TTL(ctx, "missing")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("Expiry", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "short", "v", 5*time.Minute))
		require.NoError(t, h.Store.Set(ctx, "long", "v", 10*time.Minute))

		h.Advance(5*time.Minute + time.Second)

		_, err := h.Store.Get(ctx, "short")
		require.ErrorIs(t, err, kv.ErrNotFound)
		_, err = h.Store.GetDel(ctx, "short")
		require.ErrorIs(t, err, kv.ErrNotFound)
		deleted, err := h.Store.Delete(ctx, "short")
		require.NoError(t, err)
		require.False(t, deleted)

		got, err := h.Store.Get(ctx, "long")
		require.NoError(t, err)
		require.Equal(t, "v", got)
	})

	t.Run("ConcurrentDeleteHasOneWinner", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "k", "v", time.Minute))

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if deleted, err := h.Store.Delete(ctx, "k"); err == nil && deleted {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())
	})

	t.Run("ConcurrentDeleteIfEqualHasOneWinner", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "k", "v", time.Minute))

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if deleted, err := h.Store.DeleteIfEqual(ctx, "k", "v"); err == nil && deleted {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())
	})

	t.Run("ConcurrentGetDelHasOneWinner", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		require.NoError(t, h.Store.Set(ctx, "k", "v", time.Minute))

		var (
			wg     sync.WaitGroup
			wins   atomic.Int32
			misses atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Store.GetDel(ctx, "k")
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, kv.ErrNotFound):
					misses.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())
		require.EqualValues(t, 15, misses.Load())
	})

	t.Run("Ping", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Store.Ping(context.Background()))
	})
}
