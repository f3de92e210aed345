// Package region downloads bounded map areas for offline use: it fans a
// region out into sub-areas, zoom levels and data layers, pulls each piece
// through the coordinator so everything lands in the cache tiers and the
// persistent store, and tracks download lifecycle in the region store.
package region

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raedjah1/bopmaps-cache/internal/fetcher"
	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/internal/store"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
	"github.com/raedjah1/bopmaps-cache/pkg/metrics"
)

// ErrTooLarge rejects a region whose estimated size exceeds the configured cap.
var ErrTooLarge = errors.New("estimated region size exceeds the download limit")

type Config struct {
	SubTileKm    float64
	BytesPerTile int64
	MaxSizeBytes int64
	TTL          time.Duration
}

// ProgressFunc receives monotone progress in [0,1] as a download advances.
type ProgressFunc func(fraction float64)

type Downloader struct {
	cfg    Config
	coord  Coordinator
	store  *store.Store
	logger logger.Logger

	newID func() string
	now   func() time.Time
}

// Coordinator is the slice of the cache coordinator the downloader needs.
// WarmData skips the viewport refresh throttle; a bulk download paced by a
// per-viewport limiter would store almost nothing.
type Coordinator interface {
	WarmData(ctx context.Context, dt payload.DataType, b geo.Bounds, zoom float64) (payload.Payload, error)
	GetTile(ctx context.Context, id geo.TileID, pri fetcher.Priority) ([]byte, error)
}

func New(cfg Config, coord Coordinator, st *store.Store, l logger.Logger) *Downloader {
	if cfg.SubTileKm <= 0 {
		cfg.SubTileKm = 4
	}
	if cfg.BytesPerTile <= 0 {
		cfg.BytesPerTile = 15000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 168 * time.Hour
	}

	return &Downloader{
		cfg:    cfg,
		coord:  coord,
		store:  st,
		logger: l,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// EstimateSize predicts the on-disk footprint of downloading the region:
// tile count across the requested tile zooms times a per-tile heuristic.
func (d *Downloader) EstimateSize(b geo.Bounds, zoomLevels []int) int64 {
	if len(zoomLevels) == 0 {
		zoomLevels = defaultZoomLevels()
	}
	var tiles int64
	for _, z := range zoomLevels {
		minX, minY, maxX, maxY := geo.TileRange(b, z)
		tiles += int64(maxX-minX+1) * int64(maxY-minY+1)
	}
	return tiles * d.cfg.BytesPerTile
}

// CheckSize reports ErrTooLarge when the estimated footprint exceeds the
// configured limit. Download does not apply the limit itself, it executes
// whatever it is handed; callers reject oversize regions up front.
func (d *Downloader) CheckSize(b geo.Bounds, zoomLevels []int) error {
	if d.cfg.MaxSizeBytes <= 0 {
		return nil
	}
	if est := d.EstimateSize(b, zoomLevels); est > d.cfg.MaxSizeBytes {
		return fmt.Errorf("%w: estimated %d bytes, limit %d", ErrTooLarge, est, d.cfg.MaxSizeBytes)
	}
	return nil
}

// Download fetches every layer and tile of the region at the requested zoom
// levels. Individual piece failures are skipped, not fatal; progress still
// reaches 1.0 and the region is marked downloaded with whatever landed.
// Cancelling the context marks the region cancelled and returns ctx.Err().
func (d *Downloader) Download(ctx context.Context, name string, b geo.Bounds, zoomLevels []int, onProgress ProgressFunc) (store.Region, error) {
	if !b.Valid() {
		return store.Region{}, fmt.Errorf("invalid region bounds %s", b.Key())
	}
	if len(zoomLevels) == 0 {
		zoomLevels = defaultZoomLevels()
	}

	region := store.Region{
		ID:           d.newID(),
		Name:         name,
		Bounds:       b,
		ZoomLevels:   zoomLevels,
		DownloadedAt: d.now(),
		ExpiresAt:    d.now().Add(d.cfg.TTL),
		Status:       store.StatusPending,
	}
	if err := d.store.RegisterRegion(region); err != nil {
		return store.Region{}, err
	}

	if err := d.store.UpdateRegionStatus(region.ID, store.StatusDownloading, 0); err != nil {
		return store.Region{}, err
	}
	region.Status = store.StatusDownloading
	d.logger.Info("region download started", "region", region.ID, "name", name, "zoom_levels", zoomLevels)

	subs := b.Split(d.cfg.SubTileKm)
	tasks := d.buildTasks(subs, zoomLevels)

	var (
		sizeBytes int64
		failed    int
	)
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			d.finish(region.ID, store.StatusCancelled, sizeBytes)
			metrics.RegionDownloads.WithLabelValues("cancelled").Inc()
			return region, err
		}

		n, err := d.runTask(ctx, t)
		if err != nil {
			failed++
			d.logger.Warn("region download piece failed",
				"region", region.ID, "type", t.dataType, "zoom", t.zoom, "error", err)
		}
		sizeBytes += n

		if onProgress != nil {
			onProgress(float64(i+1) / float64(len(tasks)))
		}
	}

	region.SizeBytes = sizeBytes
	region.Status = store.StatusDownloaded
	d.finish(region.ID, store.StatusDownloaded, sizeBytes)
	metrics.RegionDownloads.WithLabelValues("downloaded").Inc()
	d.logger.Info("region download finished",
		"region", region.ID, "size_bytes", sizeBytes, "pieces", len(tasks), "failed", failed)

	return region, nil
}

type task struct {
	bounds   geo.Bounds
	zoom     int
	dataType payload.DataType // empty for a tile sweep
}

// buildTasks enumerates the download work: per sub-area and tile zoom, one
// task per geometry layer plus one raster tile sweep.
func (d *Downloader) buildTasks(subs []geo.Bounds, zoomLevels []int) []task {
	tasks := make([]task, 0, len(subs)*len(zoomLevels)*(len(payload.GeometryTypes)+1))
	for _, sub := range subs {
		for _, z := range zoomLevels {
			for _, dt := range payload.GeometryTypes {
				tasks = append(tasks, task{bounds: sub, zoom: z, dataType: dt})
			}
			tasks = append(tasks, task{bounds: sub, zoom: z})
		}
	}
	return tasks
}

func (d *Downloader) runTask(ctx context.Context, t task) (int64, error) {
	if t.dataType != "" {
		p, err := d.coord.WarmData(ctx, t.dataType, t.bounds, float64(t.zoom))
		if err != nil {
			return 0, err
		}
		return p.Size(), nil
	}

	var n int64
	for _, id := range geo.TilesCovering(t.bounds, t.zoom, 0) {
		data, err := d.coord.GetTile(ctx, id, fetcher.PriorityLow)
		if err != nil {
			return n, err
		}
		n += int64(len(data))
	}
	return n, nil
}

func (d *Downloader) finish(id string, status store.Status, sizeBytes int64) {
	if err := d.store.UpdateRegionStatus(id, status, sizeBytes); err != nil {
		d.logger.Error("failed to record region status", "region", id, "status", status, "error", err)
	}
}

func defaultZoomLevels() []int {
	return []int{12, 15}
}
