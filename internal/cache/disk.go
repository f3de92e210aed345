package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
	"github.com/raedjah1/bopmaps-cache/pkg/metrics"
)

const (
	dataSuffix = ".dat"
	metaSuffix = ".meta"

	// trimTarget is the fraction of the byte budget the disk tier is trimmed
	// down to once the budget is exceeded.
	trimTarget = 0.8
)

// diskMeta is the sidecar document written next to each payload file. Sidecar
// sizes are excluded from the byte budget; payload bytes dominate.
type diskMeta struct {
	Key      string           `json:"key"`
	Type     payload.DataType `json:"type"`
	Bucket   int              `json:"bucket"`
	StoredAt time.Time        `json:"stored_at"`
	Size     int64            `json:"size"`
	Source   string           `json:"source,omitempty"`
}

// Disk is the persistent cache tier: one payload file plus one .meta sidecar
// per key hash under the cache root directory.
type Disk struct {
	mu     sync.Mutex
	dir    string
	budget int64
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewDisk(dir string, budget int64, ttl time.Duration, l logger.Logger) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Disk{
		dir:    dir,
		budget: budget,
		ttl:    ttl,
		logger: l,
		now:    time.Now,
	}, nil
}

func (d *Disk) basePath(k Key) string {
	h := sha256.Sum256([]byte(k.String()))
	return filepath.Join(d.dir, hex.EncodeToString(h[:]))
}

// Get looks the key up on disk. Expired or corrupt entries are deleted and
// reported as a miss; storage errors never propagate to the caller.
func (d *Disk) Get(k Key) (Entry, bool) {
	base := d.basePath(k)

	meta, ok := d.readMeta(base)
	if !ok {
		return Entry{}, false
	}

	if d.ttl > 0 && d.now().After(meta.StoredAt.Add(d.ttl)) {
		d.remove(base)
		metrics.CacheEvictions.WithLabelValues("ttl").Inc()
		return Entry{}, false
	}

	raw, err := os.ReadFile(base + dataSuffix)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("disk cache read failed", "key", k.String(), "error", err)
		}
		d.remove(base)
		return Entry{}, false
	}

	p, err := payload.Decode(raw)
	if err != nil {
		d.logger.Warn("dropping corrupt disk cache entry", "key", k.String(), "error", err)
		d.remove(base)
		return Entry{}, false
	}

	return Entry{Key: k, Payload: p, StoredAt: meta.StoredAt, Source: meta.Source}, true
}

// Has checks for a live entry without reading the payload file.
func (d *Disk) Has(k Key) bool {
	base := d.basePath(k)
	meta, ok := d.readMeta(base)
	if !ok {
		return false
	}
	if d.ttl > 0 && d.now().After(meta.StoredAt.Add(d.ttl)) {
		d.remove(base)
		metrics.CacheEvictions.WithLabelValues("ttl").Inc()
		return false
	}
	return true
}

func (d *Disk) Put(e Entry) error {
	raw, err := e.Payload.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	base := d.basePath(e.Key)
	if err := writeAtomic(base+dataSuffix, raw); err != nil {
		return fmt.Errorf("failed to write payload file: %w", err)
	}

	meta := diskMeta{
		Key:      e.Key.String(),
		Type:     e.Key.Type,
		Bucket:   e.Key.Bucket,
		StoredAt: e.StoredAt,
		Size:     e.Payload.Size(),
		Source:   e.Source,
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	if err := writeAtomic(base+metaSuffix, metaRaw); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}

	d.enforceBudget()
	return nil
}

func (d *Disk) Delete(k Key) {
	d.remove(d.basePath(k))
}

// Size sums the live payload sizes recorded in the sidecars.
func (d *Disk) Size() int64 {
	var total int64
	d.walkMetas(func(base string, meta diskMeta) {
		total += meta.Size
	})
	return total
}

// Sweep removes expired entries. Expiry during lookup already handles single
// keys lazily; the sweep keeps cold entries from lingering on disk.
func (d *Disk) Sweep() int {
	if d.ttl <= 0 {
		return 0
	}

	cutoff := d.now().Add(-d.ttl)
	removed := 0
	d.walkMetas(func(base string, meta diskMeta) {
		if meta.StoredAt.Before(cutoff) {
			d.remove(base)
			removed++
		}
	})
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues("ttl").Add(float64(removed))
		metrics.DiskCacheBytes.Set(float64(d.Size()))
	}
	return removed
}

func (d *Disk) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.RemoveAll(d.dir); err != nil {
		d.logger.Error("failed to clear disk cache", "error", err)
		return
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.Error("failed to recreate cache directory", "error", err)
	}
	metrics.DiskCacheBytes.Set(0)
}

func (d *Disk) ClearType(t payload.DataType) {
	d.walkMetas(func(base string, meta diskMeta) {
		if meta.Type == t {
			d.remove(base)
		}
	})
	metrics.DiskCacheBytes.Set(float64(d.Size()))
}

// enforceBudget deletes oldest-by-timestamp entries until the payload total
// is at or under trimTarget of the byte budget.
func (d *Disk) enforceBudget() {
	if d.budget <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	type aged struct {
		base     string
		storedAt time.Time
		size     int64
	}

	var (
		total   int64
		entries []aged
	)
	d.walkMetas(func(base string, meta diskMeta) {
		total += meta.Size
		entries = append(entries, aged{base: base, storedAt: meta.StoredAt, size: meta.Size})
	})

	metrics.DiskCacheBytes.Set(float64(total))
	if total <= d.budget {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].storedAt.Before(entries[j].storedAt)
	})

	target := int64(float64(d.budget) * trimTarget)
	for _, e := range entries {
		if total <= target {
			break
		}
		d.remove(e.base)
		total -= e.size
		metrics.CacheEvictions.WithLabelValues("size").Inc()
	}
	metrics.DiskCacheBytes.Set(float64(total))
	d.logger.Info("disk cache trimmed", "size_bytes", total, "budget_bytes", d.budget)
}

func (d *Disk) readMeta(base string) (diskMeta, bool) {
	raw, err := os.ReadFile(base + metaSuffix)
	if err != nil {
		return diskMeta{}, false
	}
	var meta diskMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		d.logger.Warn("dropping unreadable cache sidecar", "path", base+metaSuffix, "error", err)
		d.remove(base)
		return diskMeta{}, false
	}
	return meta, true
}

func (d *Disk) walkMetas(fn func(base string, meta diskMeta)) {
	names, err := os.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn("failed to list cache directory", "error", err)
		return
	}
	for _, de := range names {
		if de.IsDir() || !strings.HasSuffix(de.Name(), metaSuffix) {
			continue
		}
		base := filepath.Join(d.dir, strings.TrimSuffix(de.Name(), metaSuffix))
		if meta, ok := d.readMeta(base); ok {
			fn(base, meta)
		}
	}
}

func (d *Disk) remove(base string) {
	_ = os.Remove(base + dataSuffix)
	_ = os.Remove(base + metaSuffix)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
