// Package fetcher pulls tiles and geometry layers from upstream map servers,
// shielding them from redundant or excessive requests: bounded concurrency,
// per-host exponential backoff, duplicate suppression, offline detection and
// fallback tile synthesis.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/raedjah1/bopmaps-cache/internal/decoder"
	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
	"github.com/raedjah1/bopmaps-cache/pkg/metrics"
)

// ErrSuperseded rejects a pending completion when a newer request for the
// same tile replaces it.
var ErrSuperseded = errors.New("request superseded by a newer request for the same tile")

// ErrOffline reports that the fetcher is in offline mode and skipped network I/O.
var ErrOffline = errors.New("fetcher is offline")

type Config struct {
	TileURL          string // may carry a {s} subdomain placeholder
	DataURL          string
	Subdomains       []string
	UserAgent        string
	Timeout          time.Duration
	BaseInterval     time.Duration
	MaxConcurrent    int
	MaxRetries       int
	OfflineThreshold int
	ProbeInterval    time.Duration
}

type Fetcher struct {
	cfg     Config
	client  *http.Client
	decoder *decoder.Pool
	style   decoder.Style
	logger  logger.Logger

	slots *slotQueue
	hosts *hostLimiter

	subMu  sync.Mutex
	subIdx int

	flightMu sync.Mutex
	inflight map[string]*flight

	offMu        sync.Mutex
	failureCount int
	offline      bool
	lastProbe    time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type flight struct {
	waiter chan flightResult
}

type flightResult struct {
	data []byte
	err  error
}

func New(cfg Config, pool *decoder.Pool, l logger.Logger) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = 3
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Fetcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		decoder:  pool,
		style:    decoder.DefaultStyle(),
		logger:   l,
		slots:    newSlotQueue(cfg.MaxConcurrent),
		hosts:    newHostLimiter(cfg.BaseInterval),
		inflight: make(map[string]*flight),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// FetchTile returns the tile image for (z,x,y). After exhausting retries, or
// while offline, it returns the synthesized fallback tile instead of failing
// the caller. A second call for a tile already in flight replaces the prior
// pending completion rather than issuing a second network request; the prior
// caller receives ErrSuperseded.
func (f *Fetcher) FetchTile(ctx context.Context, id geo.TileID, pri Priority) ([]byte, error) {
	if !id.Valid() {
		f.logger.Warn("invalid tile coordinates requested", "tile", id.String())
		return FallbackTile(), nil
	}

	if f.offlineNow() {
		metrics.FallbackTiles.Inc()
		return FallbackTile(), nil
	}

	key := id.String()
	ch := make(chan flightResult, 1)

	f.flightMu.Lock()
	if fl, ok := f.inflight[key]; ok {
		old := fl.waiter
		fl.waiter = ch
		f.flightMu.Unlock()
		old <- flightResult{err: ErrSuperseded}
	} else {
		f.inflight[key] = &flight{waiter: ch}
		f.flightMu.Unlock()

		// The fetch must outlive the caller: a superseding request may be
		// waiting on its result even after this caller's context dies.
		go f.performFetch(context.WithoutCancel(ctx), key, id, pri)
	}

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fetcher) performFetch(ctx context.Context, key string, id geo.TileID, pri Priority) {
	data, err := f.fetchTileNetwork(ctx, id, pri)

	f.flightMu.Lock()
	fl := f.inflight[key]
	delete(f.inflight, key)
	f.flightMu.Unlock()

	if fl != nil {
		fl.waiter <- flightResult{data: data, err: err}
	}
}

func (f *Fetcher) fetchTileNetwork(ctx context.Context, id geo.TileID, pri Priority) ([]byte, error) {
	if err := f.slots.Acquire(ctx, pri); err != nil {
		return nil, err
	}
	defer f.slots.Release()

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		sub := f.nextSubdomain()
		tileURL := expandSubdomain(f.cfg.TileURL, sub) + fmt.Sprintf("/%d/%d/%d.png", id.Z, id.X, id.Y)

		data, contentType, retryable, err := f.doRequest(ctx, tileURL)
		if err == nil {
			f.recordSuccess(hostOf(tileURL))
			if isVectorContent(contentType) {
				return f.rasterize(ctx, id, data)
			}
			return data, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		f.logger.Warn("tile fetch failed", "tile", id.String(), "attempt", attempt, "error", err)

		if !retryable || attempt == f.cfg.MaxRetries {
			break
		}

		metrics.TileFetchRetries.Inc()
		if err := f.sleep(ctx, retryBackoff(attempt)); err != nil {
			return nil, err
		}
	}

	metrics.FallbackTiles.Inc()
	return FallbackTile(), nil
}

// FetchGeometry pulls one geometry layer for a viewport. Geometry has no
// fallback payload; failures surface so the coordinator can degrade to a miss.
func (f *Fetcher) FetchGeometry(ctx context.Context, dt payload.DataType, b geo.Bounds, zoomLevel int) (payload.Payload, error) {
	if f.offlineNow() {
		return payload.Payload{}, ErrOffline
	}

	if err := f.slots.Acquire(ctx, PriorityNormal); err != nil {
		return payload.Payload{}, err
	}
	defer f.slots.Release()

	dataURL := fmt.Sprintf("%s/%s?bbox=%.6f,%.6f,%.6f,%.6f&zoom=%d",
		f.cfg.DataURL, dt, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat, zoomLevel)

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		data, _, retryable, err := f.doRequest(ctx, dataURL)
		if err == nil {
			f.recordSuccess(hostOf(dataURL))
			return payload.Geometry(data), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return payload.Payload{}, err
		}

		lastErr = err
		f.logger.Warn("geometry fetch failed", "type", dt, "bounds", b.Key(), "attempt", attempt, "error", err)

		if !retryable || attempt == f.cfg.MaxRetries {
			break
		}

		metrics.TileFetchRetries.Inc()
		if err := f.sleep(ctx, retryBackoff(attempt)); err != nil {
			return payload.Payload{}, err
		}
	}

	return payload.Payload{}, fmt.Errorf("failed to fetch %s layer: %w", dt, lastErr)
}

// doRequest performs one paced HTTP GET. The returned retryable flag is true
// for 429/5xx responses and transport errors.
func (f *Fetcher) doRequest(ctx context.Context, rawURL string) (data []byte, contentType string, retryable bool, err error) {
	host := hostOf(rawURL)
	if wait := f.hosts.delay(host); wait > 0 {
		if err := f.sleep(ctx, wait); err != nil {
			return nil, "", false, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	start := f.now()
	resp, err := f.client.Do(req)
	metrics.TileFetchDuration.Observe(f.now().Sub(start).Seconds())

	if err != nil {
		f.recordFailure(host)
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, "", true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		f.recordFailure(host)
		metrics.TileFetches.WithLabelValues("throttled").Inc()
		return nil, "", true, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	default:
		metrics.TileFetches.WithLabelValues("rejected").Inc()
		return nil, "", false, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.recordFailure(host)
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, "", true, fmt.Errorf("failed to read response body: %w", err)
	}

	metrics.TileFetches.WithLabelValues("ok").Inc()
	return body, resp.Header.Get("Content-Type"), false, nil
}

func (f *Fetcher) rasterize(ctx context.Context, id geo.TileID, raw []byte) ([]byte, error) {
	png, err := f.decoder.Rasterize(ctx, id.X, id.Y, raw, f.style)
	if err != nil {
		f.logger.Warn("vector tile decode failed, serving fallback", "tile", id.String(), "error", err)
		metrics.FallbackTiles.Inc()
		return FallbackTile(), nil
	}
	return png, nil
}

// Offline reports whether the fetcher is currently suppressing network I/O.
func (f *Fetcher) Offline() bool {
	f.offMu.Lock()
	defer f.offMu.Unlock()
	return f.offline
}

// offlineNow decides whether this request should skip the network. While
// offline, one request per probe interval is let through as a connectivity
// probe; everything else is served the fallback immediately.
func (f *Fetcher) offlineNow() bool {
	f.offMu.Lock()
	defer f.offMu.Unlock()

	if !f.offline {
		return false
	}
	if f.now().Sub(f.lastProbe) >= f.cfg.ProbeInterval {
		f.lastProbe = f.now()
		return false
	}
	return true
}

func (f *Fetcher) recordSuccess(host string) {
	f.hosts.recordSuccess(host)

	f.offMu.Lock()
	defer f.offMu.Unlock()
	f.failureCount = 0
	if f.offline {
		f.offline = false
		f.logger.Info("connectivity restored, leaving offline mode")
	}
}

func (f *Fetcher) recordFailure(host string) {
	f.hosts.recordFailure(host)

	f.offMu.Lock()
	defer f.offMu.Unlock()
	f.failureCount++
	if !f.offline && f.failureCount >= f.cfg.OfflineThreshold {
		f.offline = true
		f.lastProbe = f.now()
		f.logger.Warn("entering offline mode", "consecutive_failures", f.failureCount)
	}
}

func (f *Fetcher) nextSubdomain() string {
	if len(f.cfg.Subdomains) == 0 {
		return ""
	}
	f.subMu.Lock()
	defer f.subMu.Unlock()
	sub := f.cfg.Subdomains[f.subIdx%len(f.cfg.Subdomains)]
	f.subIdx++
	return sub
}

// retryBackoff returns 2^attempt x 100-200 ms with jitter.
func retryBackoff(attempt int) time.Duration {
	base := 100 + rand.Intn(100)
	return time.Duration(base) * time.Millisecond * (1 << attempt)
}

func isVectorContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "vnd.mapbox-vector-tile") ||
		strings.Contains(ct, "geo+json") ||
		strings.Contains(ct, "application/json")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
