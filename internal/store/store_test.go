package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/internal/zoom"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "regions.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRegion(id string, b geo.Bounds, zooms []int) Region {
	return Region{
		ID:           id,
		Name:         "test " + id,
		Bounds:       b,
		ZoomLevels:   zooms,
		DownloadedAt: time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
		Status:       StatusDownloaded,
	}
}

func TestTileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := geo.TileID{Z: 12, X: 1205, Y: 1539}

	require.NoError(t, s.PutTile(id, "osm", []byte("png-bytes")))

	data, ok := s.GetTile(id, "osm")
	require.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), data)

	// Upsert replaces.
	require.NoError(t, s.PutTile(id, "osm", []byte("newer")))
	data, _ = s.GetTile(id, "osm")
	assert.Equal(t, []byte("newer"), data)

	_, ok = s.GetTile(geo.TileID{Z: 12, X: 0, Y: 0}, "osm")
	assert.False(t, ok)
	_, ok = s.GetTile(id, "other-source")
	assert.False(t, ok)
}

func TestGeometryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	b := geo.FromCenter(40, -74, 5)

	p := payload.Geometry([]byte(`{"layers":[{"name":"roads","features":[]}]}`))
	require.NoError(t, s.PutGeometry(b, 3, payload.TypeRoads, p))

	got, ok := s.GetGeometry(b, 3, payload.TypeRoads)
	require.True(t, ok)
	assert.Equal(t, payload.KindGeometry, got.Kind)

	// Different zoom level or type is a distinct row.
	_, ok = s.GetGeometry(b, 4, payload.TypeRoads)
	assert.False(t, ok)
	_, ok = s.GetGeometry(b, 3, payload.TypeParks)
	assert.False(t, ok)
}

func TestCorruptGeometryRowDropped(t *testing.T) {
	s := newTestStore(t)
	b := geo.FromCenter(40, -74, 5)

	_, err := s.db.Exec(`INSERT INTO geometry (bounds_key, zoom_level, data_type, payload, stored_at)
		VALUES (?, ?, ?, ?, ?)`, b.Key(), 3, "roads", []byte("garbage"), time.Now())
	require.NoError(t, err)

	_, ok := s.GetGeometry(b, 3, payload.TypeRoads)
	assert.False(t, ok)

	// The corrupt row was deleted, not just skipped.
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM geometry`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRegionLifecycle(t *testing.T) {
	s := newTestStore(t)
	b := geo.FromCenter(40, -74, 5)

	r := testRegion("r1", b, []int{3, 4})
	r.Status = StatusPending
	require.NoError(t, s.RegisterRegion(r))

	require.NoError(t, s.UpdateRegionStatus("r1", StatusDownloading, 0))
	got, ok := s.GetRegion("r1")
	require.True(t, ok)
	assert.Equal(t, StatusDownloading, got.Status)

	require.NoError(t, s.UpdateRegionStatus("r1", StatusDownloaded, 12345))
	got, _ = s.GetRegion("r1")
	assert.Equal(t, StatusDownloaded, got.Status)
	assert.Equal(t, int64(12345), got.SizeBytes)
	assert.Equal(t, []int{3, 4}, got.ZoomLevels)

	regions := s.GetRegions()
	require.Len(t, regions, 1)
	assert.Equal(t, "r1", regions[0].ID)
}

func TestIsRegionAvailable(t *testing.T) {
	s := newTestStore(t)
	b := geo.FromCenter(40, -74, 10)

	require.NoError(t, s.RegisterRegion(testRegion("r1", b, []int{3})))

	inner := geo.FromCenter(40, -74, 2)
	assert.True(t, s.IsRegionAvailable(inner, 3))
	assert.False(t, s.IsRegionAvailable(inner, 4), "zoom level not downloaded")

	outside := geo.FromCenter(50, 10, 2)
	assert.False(t, s.IsRegionAvailable(outside, 3))

	// Regions that are not fully downloaded do not count.
	pending := testRegion("r2", geo.FromCenter(50, 10, 10), []int{3})
	pending.Status = StatusPending
	require.NoError(t, s.RegisterRegion(pending))
	assert.False(t, s.IsRegionAvailable(outside, 3))
}

func TestDeleteRegionCascades(t *testing.T) {
	s := newTestStore(t)
	b := geo.FromCenter(40, -74, 10)

	require.NoError(t, s.RegisterRegion(testRegion("r1", b, []int{12})))

	// Data inside the region at its tile zoom. Geometry rows are keyed by
	// the detail level a zoom-12 write classifies to, under a sub-box key.
	minX, minY, _, _ := geo.TileRange(b, 12)
	inside := geo.TileID{Z: 12, X: minX, Y: minY}
	require.NoError(t, s.PutTile(inside, "osm", []byte("in")))
	subBox := geo.FromCenter(40, -74, 2)
	require.NoError(t, s.PutGeometry(subBox, zoom.Classify(12), payload.TypeRoads, payload.Geometry([]byte(`{}`))))
	require.NoError(t, s.LogAccess("r1"))

	// Data elsewhere, or at a level the region never downloaded, survives.
	outside := geo.TileID{Z: 12, X: 0, Y: 0}
	require.NoError(t, s.PutTile(outside, "osm", []byte("out")))
	farBox := geo.FromCenter(50, 10, 2)
	require.NoError(t, s.PutGeometry(farBox, zoom.Classify(12), payload.TypeRoads, payload.Geometry([]byte(`{}`))))
	require.NoError(t, s.PutGeometry(subBox, zoom.LevelBlock, payload.TypeRoads, payload.Geometry([]byte(`{}`))))

	require.NoError(t, s.DeleteRegion("r1"))

	_, ok := s.GetRegion("r1")
	assert.False(t, ok)
	_, ok = s.GetTile(inside, "osm")
	assert.False(t, ok, "tiles inside the region must be deleted")
	_, ok = s.GetGeometry(subBox, zoom.Classify(12), payload.TypeRoads)
	assert.False(t, ok, "geometry inside the region must be deleted")
	_, ok = s.GetTile(outside, "osm")
	assert.True(t, ok, "tiles outside the region must survive")
	_, ok = s.GetGeometry(farBox, zoom.Classify(12), payload.TypeRoads)
	assert.True(t, ok, "geometry outside the region must survive")
	_, ok = s.GetGeometry(subBox, zoom.LevelBlock, payload.TypeRoads)
	assert.True(t, ok, "geometry at an undownloaded level must survive")

	var logs int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM access_log`).Scan(&logs))
	assert.Equal(t, 0, logs)

	assert.Error(t, s.DeleteRegion("r1"), "double delete should fail")
}

func TestAccessRankings(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RegisterRegion(testRegion("hot", geo.FromCenter(40, -74, 5), []int{3})))
	require.NoError(t, s.RegisterRegion(testRegion("cold", geo.FromCenter(41, -74, 5), []int{3})))

	require.NoError(t, s.LogAccess("hot"))
	require.NoError(t, s.LogAccess("hot"))
	require.NoError(t, s.LogAccess("cold"))

	most := s.GetMostAccessed(10)
	require.NotEmpty(t, most)
	assert.Equal(t, "hot", most[0].ID)

	recent := s.GetRecentlyAccessed(10)
	require.NotEmpty(t, recent)
	assert.Equal(t, "cold", recent[0].ID)

	// The store stays usable afterwards: the single shared connection must
	// be released before the per-region reads, not held by an open cursor.
	_, ok := s.GetRegion("hot")
	assert.True(t, ok)
	require.NoError(t, s.LogAccess("cold"))
	assert.Len(t, s.GetRegions(), 2)
}

func TestClearExpired(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	s.now = func() time.Time { return now }

	expired := testRegion("old", geo.FromCenter(40, -74, 5), []int{3})
	expired.ExpiresAt = now.Add(-time.Minute)
	live := testRegion("new", geo.FromCenter(41, -74, 5), []int{3})
	live.ExpiresAt = now.Add(time.Hour)

	require.NoError(t, s.RegisterRegion(expired))
	require.NoError(t, s.RegisterRegion(live))

	assert.Equal(t, 1, s.ClearExpired())

	_, ok := s.GetRegion("old")
	assert.False(t, ok)
	_, ok = s.GetRegion("new")
	assert.True(t, ok)
}
