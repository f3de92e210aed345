// Package cache implements the tiered tile cache: a zoom-bucketed in-memory
// LRU, an optional shared Redis tier, and a disk-backed store with TTL and
// byte-budget eviction.
package cache

import (
	"fmt"
	"time"

	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
)

// Key identifies a cache entry by data type, spatial key and zoom bucket (or
// the tile zoom level for z/x/y keys). Two requests whose rounded keys match
// are cache-identical regardless of minor floating-point differences in the
// original bounds.
type Key struct {
	Type    payload.DataType
	Spatial string
	Bucket  int
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%d|%s", k.Type, k.Bucket, k.Spatial)
}

// BoundsKey derives a cache key from rounded bounds and a continuous zoom.
func BoundsKey(t payload.DataType, b geo.Bounds, zoom float64) Key {
	return Key{Type: t, Spatial: b.Key(), Bucket: ZoomBucket(zoom)}
}

// TileKey derives a cache key from explicit tile indices.
func TileKey(id geo.TileID) Key {
	return Key{Type: payload.TypeTile, Spatial: id.String(), Bucket: id.Z}
}

// ZoomBucket maps a continuous zoom value onto the coarse 0-5 grouping used
// to partition cache entries.
func ZoomBucket(zoom float64) int {
	switch {
	case zoom < 6:
		return 0
	case zoom < 9:
		return 1
	case zoom < 12:
		return 2
	case zoom < 15:
		return 3
	case zoom < 18:
		return 4
	default:
		return 5
	}
}

// Entry is a cached payload. StoredAt is absolute: reads refresh LRU recency
// but never the TTL clock.
type Entry struct {
	Key      Key
	Payload  payload.Payload
	StoredAt time.Time
	Source   string
}

func (e Entry) Expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.After(e.StoredAt.Add(ttl))
}
