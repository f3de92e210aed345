// Package coordinator is the traffic controller between callers, the tiered
// cache, the region store and the network fetcher. It answers every data
// request from the nearest source, throttles viewport-driven refreshes, and
// runs the debounced prefetch queue.
package coordinator

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/raedjah1/bopmaps-cache/internal/cache"
	"github.com/raedjah1/bopmaps-cache/internal/fetcher"
	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/internal/store"
	"github.com/raedjah1/bopmaps-cache/internal/zoom"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

// defaultTileSource labels persisted raster tiles in the region store.
const defaultTileSource = "osm"

type Config struct {
	MinFetchInterval time.Duration
	PrefetchDebounce time.Duration
	PrefetchPause    time.Duration
	MaxPrefetchTiles int
}

type Coordinator struct {
	cfg     Config
	cache   *cache.Tiered
	store   *store.Store
	fetcher *fetcher.Fetcher
	logger  logger.Logger

	// limiter throttles viewport-driven geometry refreshes process-wide.
	// Tile fetches and prefetch jobs are paced by the fetcher itself.
	limiter *rate.Limiter

	stats statsCounters

	quit chan struct{}
	kick chan struct{}
	jobs *jobList
	done chan struct{}
}

func New(cfg Config, tiered *cache.Tiered, st *store.Store, f *fetcher.Fetcher, l logger.Logger) *Coordinator {
	if cfg.MinFetchInterval <= 0 {
		cfg.MinFetchInterval = 10 * time.Second
	}
	if cfg.PrefetchDebounce <= 0 {
		cfg.PrefetchDebounce = 100 * time.Millisecond
	}
	if cfg.PrefetchPause <= 0 {
		cfg.PrefetchPause = 100 * time.Millisecond
	}
	if cfg.MaxPrefetchTiles <= 0 {
		cfg.MaxPrefetchTiles = 16
	}

	c := &Coordinator{
		cfg:     cfg,
		cache:   tiered,
		store:   st,
		fetcher: f,
		logger:  l,
		limiter: rate.NewLimiter(rate.Every(cfg.MinFetchInterval), 1),
		quit:    make(chan struct{}),
		kick:    make(chan struct{}, 1),
		jobs:    newJobList(),
		done:    make(chan struct{}),
	}
	go c.runPrefetch()
	return c
}

// Close stops the prefetch worker. Pending jobs are dropped.
func (c *Coordinator) Close() {
	close(c.quit)
	<-c.done
}

// GetData answers a viewport request for one geometry layer. Lookup order is
// memory, overlapping cached regions, the persistent store, then the network.
// Network refreshes are throttled process-wide; a throttled or failed fetch
// returns a zero payload with no error so the caller keeps rendering what it
// has. Cache misses are normal flow, never failures.
func (c *Coordinator) GetData(ctx context.Context, dt payload.DataType, b geo.Bounds, zoomVal float64) (payload.Payload, error) {
	p, err := c.getData(ctx, dt, b, zoomVal, false)
	if err != nil {
		c.logger.Warn("geometry fetch failed, serving empty", "type", dt, "bounds", b.Key(), "error", err)
		return payload.Payload{}, nil
	}
	return p, nil
}

// WarmData is GetData minus the viewport throttle. Prefetch jobs and region
// downloads use it; their pacing comes from the fetcher's slot queue instead.
func (c *Coordinator) WarmData(ctx context.Context, dt payload.DataType, b geo.Bounds, zoomVal float64) (payload.Payload, error) {
	return c.getData(ctx, dt, b, zoomVal, true)
}

func (c *Coordinator) getData(ctx context.Context, dt payload.DataType, b geo.Bounds, zoomVal float64, bypassThrottle bool) (payload.Payload, error) {
	c.stats.request(dt)

	key := cache.BoundsKey(dt, b, zoomVal)
	if e, ok := c.cache.Get(ctx, key); ok {
		c.stats.hit(dt)
		return e.Payload, nil
	}

	if e, ok := c.findOverlapping(dt, b, zoomVal); ok {
		c.stats.hit(dt)
		return e.Payload, nil
	}

	level := zoom.Classify(zoomVal)
	if p, ok := c.store.GetGeometry(b, level, dt); ok {
		c.stats.hit(dt)
		c.cache.Put(ctx, cache.Entry{Key: key, Payload: p, StoredAt: time.Now(), Source: "store"})
		return p, nil
	}

	if !bypassThrottle && !c.limiter.Allow() {
		c.logger.Debug("viewport refresh throttled", "type", dt, "bounds", b.Key())
		return payload.Payload{}, nil
	}

	p, err := c.fetcher.FetchGeometry(ctx, dt, b, level)
	if err != nil {
		return payload.Payload{}, err
	}

	c.StoreData(ctx, dt, b, zoomVal, p)
	return p, nil
}

// GetTile answers a raster tile request: memory and disk tiers, then the
// persistent store, then the network. The fetcher guarantees bytes come back
// even upstream-less, so callers always have something to draw.
func (c *Coordinator) GetTile(ctx context.Context, id geo.TileID, pri fetcher.Priority) ([]byte, error) {
	c.stats.request(payload.TypeTile)

	key := cache.TileKey(id)
	if e, ok := c.cache.Get(ctx, key); ok {
		c.stats.hit(payload.TypeTile)
		return e.Payload.Data, nil
	}

	if data, ok := c.store.GetTile(id, defaultTileSource); ok {
		c.stats.hit(payload.TypeTile)
		c.cache.Put(ctx, cache.Entry{Key: key, Payload: payload.Bytes(data), StoredAt: time.Now(), Source: "store"})
		return data, nil
	}

	data, err := c.fetcher.FetchTile(ctx, id, pri)
	if err != nil {
		return nil, err
	}

	// Fallback tiles are synthesized placeholders. Persisting them would
	// mask the real tile once connectivity returns.
	if !bytes.Equal(data, fetcher.FallbackTile()) {
		c.cache.Put(ctx, cache.Entry{Key: key, Payload: payload.Bytes(data), StoredAt: time.Now(), Source: "network"})
		if err := c.store.PutTile(id, defaultTileSource, data); err != nil {
			c.logger.Warn("failed to persist tile", "tile", id.String(), "error", err)
		}
	}
	return data, nil
}

// StoreData writes a payload through every tier and the persistent store.
func (c *Coordinator) StoreData(ctx context.Context, dt payload.DataType, b geo.Bounds, zoomVal float64, p payload.Payload) {
	if p.IsZero() {
		return
	}

	key := cache.BoundsKey(dt, b, zoomVal)
	c.cache.Put(ctx, cache.Entry{Key: key, Payload: p, StoredAt: time.Now(), Source: "network"})

	if err := c.store.PutGeometry(b, zoom.Classify(zoomVal), dt, p); err != nil {
		c.logger.Warn("failed to persist geometry", "type", dt, "bounds", b.Key(), "error", err)
	}
}

// HasData reports whether a request would be answered without network I/O.
func (c *Coordinator) HasData(ctx context.Context, dt payload.DataType, b geo.Bounds, zoomVal float64) bool {
	key := cache.BoundsKey(dt, b, zoomVal)
	if c.cache.Has(ctx, key) {
		return true
	}
	if _, ok := c.findOverlapping(dt, b, zoomVal); ok {
		return true
	}
	_, ok := c.store.GetGeometry(b, zoom.Classify(zoomVal), dt)
	return ok
}

// findOverlapping scans the memory tier's zoom bucket for a cached entry whose
// bounds fully contain the requested viewport. Among candidates the tightest
// one wins.
func (c *Coordinator) findOverlapping(dt payload.DataType, b geo.Bounds, zoomVal float64) (cache.Entry, bool) {
	bucket := cache.ZoomBucket(zoomVal)

	var best cache.Entry
	bestArea := 0.0
	found := false
	for _, e := range c.cache.Memory().EntriesInBucket(bucket) {
		if e.Key.Type != dt {
			continue
		}
		eb, err := geo.ParseBoundsKey(e.Key.Spatial)
		if err != nil {
			continue
		}
		if !eb.Contains(b) {
			continue
		}
		if !found || eb.Area() < bestArea {
			best, bestArea, found = e, eb.Area(), true
		}
	}
	return best, found
}

// ClearAll drops every cache tier. The persistent store is left alone; its
// contents belong to downloaded regions with their own lifecycle.
func (c *Coordinator) ClearAll(ctx context.Context) {
	c.cache.Clear(ctx)
	c.logger.Info("all cache tiers cleared")
}

// ClearType drops one data type from every cache tier.
func (c *Coordinator) ClearType(ctx context.Context, dt payload.DataType) {
	c.cache.ClearType(ctx, dt)
	c.logger.Info("cache tier cleared for type", "type", dt)
}
