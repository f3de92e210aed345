package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_stores_total",
		Help: "Total number of cache store operations",
	})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Total number of cache entries evicted",
	}, []string{"reason"})

	DiskCacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "disk_cache_size_bytes",
		Help: "Current size of the disk cache payload files",
	})

	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tile_fetches_total",
		Help: "Total number of upstream tile fetches by outcome",
	}, []string{"outcome"})

	TileFetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetch_retries_total",
		Help: "Total number of upstream fetch retries",
	})

	FallbackTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fallback_tiles_total",
		Help: "Total number of synthesized fallback tiles served",
	})

	TileFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_fetch_duration_seconds",
		Help:    "Duration of upstream tile fetches in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	PrefetchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prefetch_queue_depth",
		Help: "Number of prefetch requests waiting in the queue",
	})

	RegionDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "region_downloads_total",
		Help: "Total number of region downloads by final status",
	}, []string{"status"})
)
