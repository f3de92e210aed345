package coordinator

import (
	"sync"

	"github.com/raedjah1/bopmaps-cache/internal/payload"
)

// TypeStats is the request/hit tally for one data type.
type TypeStats struct {
	Requests uint64 `json:"requests"`
	Hits     uint64 `json:"hits"`
}

// Stats is a point-in-time snapshot of coordinator activity.
type Stats struct {
	Requests      uint64               `json:"requests"`
	Hits          uint64               `json:"hits"`
	HitRate       float64              `json:"hit_rate"`
	ByType        map[string]TypeStats `json:"by_type"`
	MemoryItems   int                  `json:"memory_items"`
	DiskSizeBytes int64                `json:"disk_size_bytes"`
	QueueDepth    int                  `json:"queue_depth"`
	Offline       bool                 `json:"offline"`
}

type statsCounters struct {
	mu       sync.Mutex
	requests uint64
	hits     uint64
	byType   map[string]*TypeStats
}

func (s *statsCounters) request(dt payload.DataType) {
	s.bump(string(dt), false)
}

func (s *statsCounters) hit(dt payload.DataType) {
	s.bump(string(dt), true)
}

func (s *statsCounters) bump(name string, hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byType == nil {
		s.byType = make(map[string]*TypeStats)
	}
	ts := s.byType[name]
	if ts == nil {
		ts = &TypeStats{}
		s.byType[name] = ts
	}

	if hit {
		s.hits++
		ts.Hits++
	} else {
		s.requests++
		ts.Requests++
	}
}

func (s *statsCounters) snapshot() (requests, hits uint64, byType map[string]TypeStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType = make(map[string]TypeStats, len(s.byType))
	for name, ts := range s.byType {
		byType[name] = *ts
	}
	return s.requests, s.hits, byType
}

// Stats returns a consistent snapshot of the counters plus current tier sizes.
func (c *Coordinator) Stats() Stats {
	requests, hits, byType := c.stats.snapshot()

	rate := 0.0
	if requests > 0 {
		rate = float64(hits) / float64(requests)
	}

	return Stats{
		Requests:      requests,
		Hits:          hits,
		HitRate:       rate,
		ByType:        byType,
		MemoryItems:   c.cache.Memory().Len(),
		DiskSizeBytes: c.cache.DiskSize(),
		QueueDepth:    c.jobs.depth(),
		Offline:       c.fetcher.Offline(),
	}
}
