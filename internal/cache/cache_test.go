package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Number string `json:"number"`
	Count  int    `json:"count"`
}

func newRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Minute), srv
}

func TestRedisStore(t *testing.T) {
	t.Run("should report a miss for absent keys", func(t *testing.T) {
		store, _ := newRedis(t)
		_, err := store.Get(t.Context(), "orders:missing")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("should apply the default ttl when none is given", func(t *testing.T) {
		store, srv := newRedis(t)
		require.NoError(t, store.Set(t.Context(), "orders:1", []byte("x"), 0))
		assert.Equal(t, time.Minute, srv.TTL("orders:1"))

		srv.FastForward(2 * time.Minute)
		_, err := store.Get(t.Context(), "orders:1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("should delete entries", func(t *testing.T) {
		store, _ := newRedis(t)
		require.NoError(t, store.Set(t.Context(), "orders:2", []byte("x"), time.Second))
		require.NoError(t, store.Delete(t.Context(), "orders:2"))
		_, err := store.Get(t.Context(), "orders:2")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("should reject an empty key on write", func(t *testing.T) {
		store, _ := newRedis(t)
		assert.Error(t, store.Set(t.Context(), "", []byte("x"), 0))
	})
}

func TestJSONHelpers(t *testing.T) {
	t.Run("should round trip a value", func(t *testing.T) {
		store, _ := newRedis(t)
		in := snapshot{Number: "SHP-1", Count: 2}
		require.NoError(t, SetJSON(t.Context(), store, "manifests:1", in, 0))

		var out snapshot
		require.NoError(t, GetJSON(t.Context(), store, "manifests:1", &out))
		assert.Equal(t, in, out)
	})

	t.Run("should treat a nil store as a miss", func(t *testing.T) {
		var out snapshot
		assert.ErrorIs(t, GetJSON(t.Context(), nil, "k", &out), ErrCacheMiss)
		assert.NoError(t, SetJSON(t.Context(), nil, "k", out, 0))
	})

	t.Run("should miss on the noop store", func(t *testing.T) {
		store := Noop()
		require.NoError(t, SetJSON(t.Context(), store, "k", snapshot{}, 0))
		var out snapshot
		assert.ErrorIs(t, GetJSON(t.Context(), store, "k", &out), ErrCacheMiss)
	})
}
