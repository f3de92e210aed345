package cache

import (
	"context"

	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
	"github.com/raedjah1/bopmaps-cache/pkg/metrics"
)

// Tiered chains the memory, shared and disk tiers. Lower-tier hits are
// backfilled upwards. The memory tier is a volatile projection; dropping it
// loses nothing.
type Tiered struct {
	mem    *Memory
	shared *Redis // nil when the shared tier is disabled
	disk   *Disk
	logger logger.Logger
}

func NewTiered(mem *Memory, shared *Redis, disk *Disk, l logger.Logger) *Tiered {
	return &Tiered{mem: mem, shared: shared, disk: disk, logger: l}
}

func (t *Tiered) Memory() *Memory { return t.mem }
func (t *Tiered) Disk() *Disk     { return t.disk }

func (t *Tiered) Get(ctx context.Context, k Key) (Entry, bool) {
	if entry, ok := t.mem.Get(k); ok {
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return entry, true
	}

	if t.shared != nil {
		if p, ok := t.shared.Get(ctx, k); ok {
			metrics.CacheHits.WithLabelValues("shared").Inc()
			entry := Entry{Key: k, Payload: p, StoredAt: t.mem.now()}
			t.mem.Put(entry)
			return entry, true
		}
	}

	if entry, ok := t.disk.Get(k); ok {
		metrics.CacheHits.WithLabelValues("disk").Inc()
		t.mem.Put(entry)
		if t.shared != nil {
			t.shared.Put(ctx, k, entry.Payload)
		}
		return entry, true
	}

	metrics.CacheMisses.Inc()
	return Entry{}, false
}

func (t *Tiered) Has(ctx context.Context, k Key) bool {
	if t.mem.Has(k) {
		return true
	}
	if t.shared != nil {
		if _, ok := t.shared.Get(ctx, k); ok {
			return true
		}
	}
	return t.disk.Has(k)
}

func (t *Tiered) Put(ctx context.Context, e Entry) {
	metrics.CacheStores.Inc()
	t.mem.Put(e)
	if t.shared != nil {
		t.shared.Put(ctx, e.Key, e.Payload)
	}
	if err := t.disk.Put(e); err != nil {
		t.logger.Warn("disk cache write failed", "key", e.Key.String(), "error", err)
	}
}

func (t *Tiered) Delete(ctx context.Context, k Key) {
	t.mem.Delete(k)
	if t.shared != nil {
		t.shared.Delete(ctx, k)
	}
	t.disk.Delete(k)
}

func (t *Tiered) Clear(ctx context.Context) {
	t.mem.Clear()
	if t.shared != nil {
		t.shared.Clear(ctx)
	}
	t.disk.Clear()
}

func (t *Tiered) ClearType(ctx context.Context, dt payload.DataType) {
	t.mem.ClearType(dt)
	t.disk.ClearType(dt)
	// The shared tier expires by TTL; scanning it per type is not worth the
	// round trips for a projection that rebuilds itself.
}

func (t *Tiered) DiskSize() int64 {
	return t.disk.Size()
}
