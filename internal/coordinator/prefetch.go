package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/raedjah1/bopmaps-cache/internal/cache"
	"github.com/raedjah1/bopmaps-cache/internal/fetcher"
	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/metrics"
)

// PrefetchRequest asks for a viewport to be warmed in the background across
// a tile zoom range. An empty DataTypes warms every layer plus raster tiles.
type PrefetchRequest struct {
	Bounds    geo.Bounds
	DataTypes []payload.DataType
	MinZoom   int
	MaxZoom   int
	Priority  fetcher.Priority
}

type prefetchJob struct {
	bounds    geo.Bounds
	dataTypes []payload.DataType
	minZoom   int
	maxZoom   int
	pri       fetcher.Priority
}

// jobList is the pending prefetch queue. High-priority jobs go to the head,
// everything else to the tail, so urgent viewports jump the line.
type jobList struct {
	mu   sync.Mutex
	jobs []prefetchJob
}

func newJobList() *jobList {
	return &jobList{}
}

// add queues a job. Queued jobs whose bounds overlap the new viewport are
// dropped: during a pan or zoom gesture the most recent request supersedes
// everything it overlaps, so a jittery viewport never piles up work.
func (l *jobList) add(j prefetchJob) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.jobs[:0]
	for _, existing := range l.jobs {
		if existing.bounds.Intersects(j.bounds) {
			continue
		}
		kept = append(kept, existing)
	}

	if j.pri == fetcher.PriorityHigh {
		l.jobs = append([]prefetchJob{j}, kept...)
	} else {
		l.jobs = append(kept, j)
	}
	return len(l.jobs)
}

func (l *jobList) pop() (prefetchJob, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.jobs) == 0 {
		return prefetchJob{}, 0, false
	}
	j := l.jobs[0]
	l.jobs = l.jobs[1:]
	return j, len(l.jobs), true
}

func (l *jobList) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

// Prefetch queues a viewport for background warming. The queue is debounced:
// rapid successive calls during a pan or zoom gesture coalesce into the most
// recent overlapping request, and work only starts once the viewport settles.
func (c *Coordinator) Prefetch(ctx context.Context, req PrefetchRequest) {
	if !req.Bounds.Valid() {
		c.logger.Warn("prefetch request with invalid bounds ignored", "bounds", req.Bounds.Key())
		return
	}

	minZ, maxZ := clampZoomRange(req.MinZoom, req.MaxZoom)
	depth := c.jobs.add(prefetchJob{
		bounds:    req.Bounds,
		dataTypes: req.DataTypes,
		minZoom:   minZ,
		maxZoom:   maxZ,
		pri:       req.Priority,
	})
	metrics.PrefetchQueueDepth.Set(float64(depth))

	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// PrefetchViewport warms every layer of a viewport at one zoom with normal
// priority. The zoom manager uses it when the detail level changes.
func (c *Coordinator) PrefetchViewport(ctx context.Context, b geo.Bounds, zoomVal float64) {
	z := int(zoomVal)
	c.Prefetch(ctx, PrefetchRequest{
		Bounds:   b,
		MinZoom:  z,
		MaxZoom:  z,
		Priority: fetcher.PriorityNormal,
	})
}

func clampZoomRange(minZ, maxZ int) (int, int) {
	if minZ < 0 {
		minZ = 0
	}
	if minZ > 19 {
		minZ = 19
	}
	if maxZ < minZ {
		maxZ = minZ
	}
	if maxZ > 19 {
		maxZ = 19
	}
	return minZ, maxZ
}

// QueueDepth returns the number of pending prefetch jobs.
func (c *Coordinator) QueueDepth() int {
	return c.jobs.depth()
}

func (c *Coordinator) runPrefetch() {
	defer close(c.done)

	for {
		select {
		case <-c.quit:
			return
		case <-c.kick:
		}

		// Debounce: keep resetting while kicks arrive, then drain.
		timer := time.NewTimer(c.cfg.PrefetchDebounce)
	settle:
		for {
			select {
			case <-c.quit:
				timer.Stop()
				return
			case <-c.kick:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(c.cfg.PrefetchDebounce)
			case <-timer.C:
				break settle
			}
		}

		c.drainPrefetch()
	}
}

func (c *Coordinator) drainPrefetch() {
	for {
		job, depth, ok := c.jobs.pop()
		if !ok {
			metrics.PrefetchQueueDepth.Set(0)
			return
		}
		metrics.PrefetchQueueDepth.Set(float64(depth))

		c.runPrefetchJob(job)

		select {
		case <-c.quit:
			return
		case <-time.After(c.cfg.PrefetchPause):
		}
	}
}

// runPrefetchJob warms one viewport across its zoom range: the requested
// geometry layers, plus the raster tiles covering it, capped per job.
// Failures are logged and skipped; a prefetch must never surface an error.
func (c *Coordinator) runPrefetchJob(job prefetchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	types := job.dataTypes
	if len(types) == 0 {
		types = append([]payload.DataType{payload.TypeTile}, payload.GeometryTypes...)
	}

	wantTiles := false
	for z := job.minZoom; z <= job.maxZoom; z++ {
		for _, dt := range types {
			if dt == payload.TypeTile {
				wantTiles = true
				continue
			}
			if c.HasData(ctx, dt, job.bounds, float64(z)) {
				continue
			}
			if _, err := c.getData(ctx, dt, job.bounds, float64(z), true); err != nil {
				c.logger.Debug("prefetch layer skipped", "type", dt, "bounds", job.bounds.Key(), "error", err)
			}
		}
	}
	if !wantTiles {
		return
	}

	remaining := c.cfg.MaxPrefetchTiles
	for z := job.minZoom; z <= job.maxZoom && remaining > 0; z++ {
		for _, id := range geo.TilesCovering(job.bounds, z, remaining) {
			if c.cache.Has(ctx, cache.TileKey(id)) {
				continue
			}
			if _, err := c.GetTile(ctx, id, job.pri); err != nil {
				c.logger.Debug("prefetch tile skipped", "tile", id.String(), "error", err)
			}
			remaining--
		}
	}
}
