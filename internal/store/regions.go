package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/zoom"
)

// Status is the lifecycle state of an offline region download.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusCancelled   Status = "cancelled"
	StatusError       Status = "error"
)

// Region is a named, bounded, multi-zoom-level offline download unit.
// ZoomLevels holds slippy tile zooms, not detail levels.
type Region struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Bounds       geo.Bounds `json:"bounds"`
	ZoomLevels   []int      `json:"zoom_levels"`
	DownloadedAt time.Time  `json:"downloaded_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	SizeBytes    int64      `json:"size_bytes"`
	Status       Status     `json:"status"`
}

// RegisterRegion inserts or replaces a region record.
func (s *Store) RegisterRegion(r Region) error {
	zooms, err := json.Marshal(r.ZoomLevels)
	if err != nil {
		return fmt.Errorf("failed to encode zoom levels: %w", err)
	}

	query := `INSERT INTO regions
	(id, name, min_lat, min_lon, max_lat, max_lon, bounds_key, zoom_levels, downloaded_at, expires_at, size_bytes, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		downloaded_at = excluded.downloaded_at,
		expires_at = excluded.expires_at,
		size_bytes = excluded.size_bytes,
		status = excluded.status`

	_, err = s.db.Exec(query,
		r.ID, r.Name,
		r.Bounds.MinLat, r.Bounds.MinLon, r.Bounds.MaxLat, r.Bounds.MaxLon,
		r.Bounds.Key(), string(zooms),
		r.DownloadedAt, r.ExpiresAt, r.SizeBytes, string(r.Status),
	)
	if err != nil {
		s.logger.Error("region register failed", "region", r.ID, "error", err)
		return err
	}
	return nil
}

// UpdateRegionStatus mutates status and size as a download progresses.
func (s *Store) UpdateRegionStatus(id string, status Status, sizeBytes int64) error {
	query := `UPDATE regions SET status = ?, size_bytes = ?, downloaded_at = ? WHERE id = ?`
	_, err := s.db.Exec(query, string(status), sizeBytes, s.now(), id)
	if err != nil {
		s.logger.Error("region status update failed", "region", id, "error", err)
		return err
	}
	return nil
}

// GetRegions lists all region records. Read failures return an empty list.
func (s *Store) GetRegions() []Region {
	rows, err := s.db.Query(`SELECT id, name, min_lat, min_lon, max_lat, max_lon, zoom_levels,
		downloaded_at, expires_at, size_bytes, status FROM regions ORDER BY downloaded_at DESC`)
	if err != nil {
		s.logger.Error("region list read failed", "error", err)
		return nil
	}
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable region row", "error", err)
			continue
		}
		regions = append(regions, r)
	}
	return regions
}

// GetRegion fetches one region record by id.
func (s *Store) GetRegion(id string) (Region, bool) {
	row := s.db.QueryRow(`SELECT id, name, min_lat, min_lon, max_lat, max_lon, zoom_levels,
		downloaded_at, expires_at, size_bytes, status FROM regions WHERE id = ?`, id)

	r, err := scanRegion(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Error("region read failed", "region", id, "error", err)
		}
		return Region{}, false
	}
	return r, true
}

// IsRegionAvailable reports whether a downloaded region covers the given
// bounds at the given tile zoom.
func (s *Store) IsRegionAvailable(b geo.Bounds, zoomLevel int) bool {
	for _, r := range s.GetRegions() {
		if r.Status != StatusDownloaded {
			continue
		}
		if !r.Bounds.Contains(b) {
			continue
		}
		for _, z := range r.ZoomLevels {
			if z == zoomLevel {
				return true
			}
		}
	}
	return false
}

// DeleteRegion removes a region and cascades the delete to every tile,
// geometry and access-log row falling inside the region's bounds at its zoom
// levels. Region zoom levels are slippy tile zooms; geometry rows are keyed
// by detail level, so the cascade translates through the same classifier the
// write path used.
func (s *Store) DeleteRegion(id string) error {
	r, ok := s.GetRegion(id)
	if !ok {
		return fmt.Errorf("region %s not found", id)
	}

	levels := make(map[int]struct{}, len(r.ZoomLevels))
	for _, z := range r.ZoomLevels {
		levels[zoom.Classify(float64(z))] = struct{}{}
	}
	geomKeys := s.geometryKeysInside(r.Bounds, levels)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, z := range r.ZoomLevels {
		minX, minY, maxX, maxY := geo.TileRange(r.Bounds, z)
		if _, err := tx.Exec(`DELETE FROM tiles WHERE z = ? AND x BETWEEN ? AND ? AND y BETWEEN ? AND ?`,
			z, minX, maxX, minY, maxY); err != nil {
			return err
		}
	}

	for _, k := range geomKeys {
		if _, err := tx.Exec(`DELETE FROM geometry WHERE bounds_key = ? AND zoom_level = ?`,
			k.boundsKey, k.level); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM access_log WHERE region_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM regions WHERE id = ?`, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("region deleted", "region", id, "name", r.Name)
	return nil
}

type geometryKey struct {
	boundsKey string
	level     int
}

// geometryKeysInside lists the geometry rows whose bounds fall inside the
// given bounds at the given detail levels. The cursor is fully drained before
// returning; callers issue further statements on the shared connection.
func (s *Store) geometryKeysInside(b geo.Bounds, levels map[int]struct{}) []geometryKey {
	rows, err := s.db.Query(`SELECT DISTINCT bounds_key, zoom_level FROM geometry`)
	if err != nil {
		s.logger.Error("geometry key scan failed", "error", err)
		return nil
	}

	var all []geometryKey
	for rows.Next() {
		var k geometryKey
		if err := rows.Scan(&k.boundsKey, &k.level); err != nil {
			continue
		}
		all = append(all, k)
	}
	rows.Close()

	// Bounds keys round to 3 decimals, so edge boxes may poke out by up to
	// half a thousandth of a degree.
	const slack = 0.001

	var inside []geometryKey
	for _, k := range all {
		if _, ok := levels[k.level]; !ok {
			continue
		}
		kb, err := geo.ParseBoundsKey(k.boundsKey)
		if err != nil {
			continue
		}
		if kb.MinLat >= b.MinLat-slack && kb.MaxLat <= b.MaxLat+slack &&
			kb.MinLon >= b.MinLon-slack && kb.MaxLon <= b.MaxLon+slack {
			inside = append(inside, k)
		}
	}
	return inside
}

// LogAccess appends an access-log entry for a region. Entries are append-only
// and pruned only by the region's cascade delete.
func (s *Store) LogAccess(regionID string) error {
	_, err := s.db.Exec(`INSERT INTO access_log (region_id, accessed_at) VALUES (?, ?)`, regionID, s.now())
	if err != nil {
		s.logger.Error("access log write failed", "region", regionID, "error", err)
		return err
	}
	return nil
}

// GetMostAccessed ranks regions by access count.
func (s *Store) GetMostAccessed(limit int) []Region {
	return s.regionsByAccess(`SELECT region_id FROM access_log
		GROUP BY region_id ORDER BY COUNT(*) DESC LIMIT ?`, limit)
}

// GetRecentlyAccessed ranks regions by last access time.
func (s *Store) GetRecentlyAccessed(limit int) []Region {
	return s.regionsByAccess(`SELECT region_id FROM access_log
		GROUP BY region_id ORDER BY MAX(accessed_at) DESC LIMIT ?`, limit)
}

func (s *Store) regionsByAccess(query string, limit int) []Region {
	rows, err := s.db.Query(query, limit)
	if err != nil {
		s.logger.Error("access log read failed", "error", err)
		return nil
	}

	// Drain the cursor before issuing follow-up reads: the pool holds a
	// single connection and an open cursor owns it.
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	rows.Close()

	var regions []Region
	for _, id := range ids {
		if r, ok := s.GetRegion(id); ok {
			regions = append(regions, r)
		}
	}
	return regions
}

// ClearExpired deletes every region whose expiry has passed, each through the
// same cascade as an explicit delete. Returns the number of regions removed.
func (s *Store) ClearExpired() int {
	now := s.now()
	removed := 0
	for _, r := range s.GetRegions() {
		if r.ExpiresAt.IsZero() || r.ExpiresAt.After(now) {
			continue
		}
		if err := s.DeleteRegion(r.ID); err != nil {
			s.logger.Warn("expired region delete failed", "region", r.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("expired regions cleared", "count", removed)
	}
	return removed
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegion(row rowScanner) (Region, error) {
	var (
		r            Region
		zooms        string
		status       string
		downloadedAt sql.NullTime
		expiresAt    sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name,
		&r.Bounds.MinLat, &r.Bounds.MinLon, &r.Bounds.MaxLat, &r.Bounds.MaxLon,
		&zooms, &downloadedAt, &expiresAt, &r.SizeBytes, &status)
	if err != nil {
		return Region{}, err
	}

	if err := json.Unmarshal([]byte(zooms), &r.ZoomLevels); err != nil {
		return Region{}, fmt.Errorf("malformed zoom levels for region %s: %w", r.ID, err)
	}
	if downloadedAt.Valid {
		r.DownloadedAt = downloadedAt.Time
	}
	if expiresAt.Valid {
		r.ExpiresAt = expiresAt.Time
	}
	r.Status = Status(status)
	return r, nil
}
