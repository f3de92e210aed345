package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func newTestTiered(t *testing.T, shared *Redis) *Tiered {
	t.Helper()
	disk, err := NewDisk(t.TempDir(), 0, time.Hour, logger.NewNop())
	require.NoError(t, err)
	return NewTiered(NewMemory(50, 100, time.Hour), shared, disk, logger.NewNop())
}

func TestTieredWriteThroughAndRead(t *testing.T) {
	tiered := newTestTiered(t, nil)
	ctx := context.Background()

	e := Entry{
		Key:      Key{Type: payload.TypeBuildings, Spatial: "1.000,2.000,3.000,4.000", Bucket: 2},
		Payload:  payload.Geometry([]byte(`{"layers":[]}`)),
		StoredAt: time.Now(),
	}
	tiered.Put(ctx, e)

	got, ok := tiered.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, payload.KindGeometry, got.Payload.Kind)
	assert.True(t, tiered.Disk().Has(e.Key), "puts must reach the disk tier")
}

func TestTieredDiskBackfillsMemory(t *testing.T) {
	tiered := newTestTiered(t, nil)
	ctx := context.Background()

	e := Entry{
		Key:      Key{Type: payload.TypeTile, Spatial: "10/1/2", Bucket: 10},
		Payload:  payload.Bytes([]byte("png")),
		StoredAt: time.Now(),
	}
	require.NoError(t, tiered.Disk().Put(e))
	assert.Equal(t, 0, tiered.Memory().Len())

	_, ok := tiered.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, 1, tiered.Memory().Len(), "disk hit should backfill memory")
}

func TestTieredSharedTier(t *testing.T) {
	r, _ := setupRedisTier(t)
	tiered := newTestTiered(t, r)
	ctx := context.Background()

	e := Entry{
		Key:      Key{Type: payload.TypeWater, Spatial: "a", Bucket: 1},
		Payload:  payload.Bytes([]byte("w")),
		StoredAt: time.Now(),
	}
	tiered.Put(ctx, e)

	// A fresh process with the same shared tier sees the entry.
	other := newTestTiered(t, r)
	got, ok := other.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, []byte("w"), got.Payload.Data)
	assert.Equal(t, 1, other.Memory().Len())
}

func TestTieredDeleteAndClearType(t *testing.T) {
	tiered := newTestTiered(t, nil)
	ctx := context.Background()

	roads := Entry{
		Key:      Key{Type: payload.TypeRoads, Spatial: "a", Bucket: 1},
		Payload:  payload.Bytes([]byte("r")),
		StoredAt: time.Now(),
	}
	parks := Entry{
		Key:      Key{Type: payload.TypeParks, Spatial: "b", Bucket: 1},
		Payload:  payload.Bytes([]byte("p")),
		StoredAt: time.Now(),
	}
	tiered.Put(ctx, roads)
	tiered.Put(ctx, parks)

	tiered.Delete(ctx, roads.Key)
	assert.False(t, tiered.Has(ctx, roads.Key))
	assert.True(t, tiered.Has(ctx, parks.Key))

	tiered.ClearType(ctx, payload.TypeParks)
	assert.False(t, tiered.Has(ctx, parks.Key))
}
