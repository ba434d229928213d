package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	kvredis "github.com/aussiebroadwan/gatekeeper/pkg/kv/drivers/redis"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv/kvtest"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *kvredis.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := kvredis.New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestConformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kvtest.Harness {
		mr, s := newMiniredis(t)
		return kvtest.Harness{Store: s, Advance: mr.FastForward}
	})
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := kvredis.Open(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Set(context.Background(), "jwt:refresh:abc", "sealed", 7*24*time.Hour))
	require.True(t, mr.Exists("jwt:refresh:abc"))
	require.Equal(t, 7*24*time.Hour, mr.TTL("jwt:refresh:abc"))
}

func TestOpenBadURL(t *testing.T) {
	_, err := kvredis.Open(context.Background(), "not-a-url")
	require.Error(t, err)
}

func TestErrorsPropagate(t *testing.T) {
	mr, s := newMiniredis(t)
	mr.SetError("LOADING")

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	_, err = s.Delete(context.Background(), "k")
	require.Error(t, err)
}
