package rediskv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chatquiz/internal/storage"
	"github.com/victornm/chatquiz/internal/storage/rediskv"
	"github.com/victornm/chatquiz/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.KV {
		return rediskv.New(rediskv.Config{
			Redis:  makeRedis(t),
			Prefix: "test",
		})
	})
}

func TestStore_KeysArePrefixed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
	s := rediskv.New(rediskv.Config{Redis: rc, Prefix: "local"})

	_, err := s.Put(ctx, "42", []byte("v"), 0)
	require.NoError(t, err)

	require.True(t, rs.Exists("local:session:42"))
	require.Equal(t, "v", rs.HGet("local:session:42", "data"))
}

func makeRedis(t *testing.T) redis.UniversalClient {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return rc
}
