package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func setupRedisTier(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	r, err := NewRedis(RedisConfig{Addr: mr.Addr(), TTL: time.Hour}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r, mr
}

func TestRedisPutGet(t *testing.T) {
	r, _ := setupRedisTier(t)
	ctx := context.Background()

	k := Key{Type: payload.TypeWater, Spatial: "1.000,2.000,3.000,4.000", Bucket: 2}
	r.Put(ctx, k, payload.Geometry([]byte(`{"layers":[]}`)))

	p, ok := r.Get(ctx, k)
	require.True(t, ok)
	assert.Equal(t, payload.KindGeometry, p.Kind)
	assert.JSONEq(t, `{"layers":[]}`, string(p.Geometry))

	_, ok = r.Get(ctx, Key{Type: payload.TypeWater, Spatial: "other", Bucket: 2})
	assert.False(t, ok)
}

func TestRedisCorruptEntryDropped(t *testing.T) {
	r, mr := setupRedisTier(t)
	ctx := context.Background()

	k := Key{Type: payload.TypeParks, Spatial: "a", Bucket: 1}
	require.NoError(t, mr.Set(r.keyFor(k), "garbage"))

	_, ok := r.Get(ctx, k)
	assert.False(t, ok)
	assert.False(t, mr.Exists(r.keyFor(k)), "corrupt entry should be deleted")
}

func TestRedisDegradesToMissWhenDown(t *testing.T) {
	r, mr := setupRedisTier(t)
	ctx := context.Background()

	k := Key{Type: payload.TypeRoads, Spatial: "a", Bucket: 1}
	r.Put(ctx, k, payload.Bytes([]byte("x")))

	mr.Close()

	_, ok := r.Get(ctx, k)
	assert.False(t, ok, "a dead server must read as a miss, not an error")
	r.Put(ctx, k, payload.Bytes([]byte("y"))) // must not panic
}

func TestRedisClear(t *testing.T) {
	r, mr := setupRedisTier(t)
	ctx := context.Background()

	r.Put(ctx, Key{Type: payload.TypeRoads, Spatial: "a", Bucket: 1}, payload.Bytes([]byte("x")))
	r.Put(ctx, Key{Type: payload.TypeParks, Spatial: "b", Bucket: 2}, payload.Bytes([]byte("y")))
	require.NoError(t, mr.Set("unrelated", "keep"))

	r.Clear(ctx)

	_, ok := r.Get(ctx, Key{Type: payload.TypeRoads, Spatial: "a", Bucket: 1})
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"), "only cache keys should be cleared")
}
