package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/raedjah1/bopmaps-cache/internal/cache"
	"github.com/raedjah1/bopmaps-cache/internal/coordinator"
	"github.com/raedjah1/bopmaps-cache/internal/decoder"
	"github.com/raedjah1/bopmaps-cache/internal/fetcher"
	v1 "github.com/raedjah1/bopmaps-cache/internal/infrastructure/http/v1"
	"github.com/raedjah1/bopmaps-cache/internal/infrastructure/http/v1/handler"
	"github.com/raedjah1/bopmaps-cache/internal/region"
	"github.com/raedjah1/bopmaps-cache/internal/store"
	"github.com/raedjah1/bopmaps-cache/pkg/config"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
	"github.com/raedjah1/bopmaps-cache/pkg/metrics"
	"github.com/raedjah1/bopmaps-cache/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)

	l.Info("starting map data cache", "config", cfg)

	var shutdownTelemetry func(context.Context) error
	if cfg.Telemetry.Enabled {
		var err error
		shutdownTelemetry, err = telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	// Cache tiers
	memory := cache.NewMemory(cfg.Cache.ItemsPerBucket, cfg.Cache.MaxItems, cfg.Cache.TTL)

	disk, err := cache.NewDisk(cfg.Cache.Dir, cfg.Cache.DiskBudgetBytes, cfg.Cache.TTL, l)
	if err != nil {
		l.Fatal("failed to initialize disk cache", "error", err)
	}

	var shared *cache.Redis
	if cfg.Redis.Enabled {
		shared, err = cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize redis cache", "error", err)
		}
		defer shared.Close()
		l.Info("redis cache tier enabled", "addr", cfg.Redis.Addr)
	}

	tiered := cache.NewTiered(memory, shared, disk, l)

	// Persistent region store
	st, err := store.New(cfg.Store.Path, l)
	if err != nil {
		l.Fatal("failed to initialize region store", "error", err)
	}
	defer st.Close()

	// Decoder pool and network fetcher
	pool := decoder.NewPool(cfg.Decoder.Workers, l)
	defer pool.Close()

	f := fetcher.New(fetcher.Config{
		TileURL:          cfg.Fetcher.UpstreamTileURL,
		DataURL:          cfg.Fetcher.UpstreamDataURL,
		Subdomains:       splitSubdomains(cfg.Fetcher.Subdomains),
		UserAgent:        cfg.Fetcher.UserAgent,
		Timeout:          cfg.Fetcher.Timeout,
		BaseInterval:     cfg.Fetcher.BaseInterval,
		MaxConcurrent:    cfg.Fetcher.MaxConcurrent,
		MaxRetries:       cfg.Fetcher.MaxRetries,
		OfflineThreshold: cfg.Fetcher.OfflineThreshold,
		ProbeInterval:    cfg.Fetcher.ProbeInterval,
	}, pool, l)

	// Coordinator and region downloader
	coord := coordinator.New(coordinator.Config{
		MinFetchInterval: cfg.Coordinator.MinFetchInterval,
		PrefetchDebounce: cfg.Coordinator.PrefetchDebounce,
		PrefetchPause:    cfg.Coordinator.PrefetchPause,
		MaxPrefetchTiles: cfg.Coordinator.MaxPrefetchTiles,
	}, tiered, st, f, l)
	defer coord.Close()

	downloader := region.New(region.Config{
		SubTileKm:    cfg.Downloader.SubTileKm,
		BytesPerTile: cfg.Downloader.BytesPerTile,
		MaxSizeBytes: cfg.Downloader.MaxSizeBytes,
		TTL:          cfg.Cache.TTL,
	}, coord, st, l)

	// Background sweeps
	sweepDone := make(chan struct{})
	go runSweeps(cfg, disk, st, l, sweepDone)

	// HTTP surface
	validate := validator.New()
	h := handler.NewHandler(validate, coord, downloader, st)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.Server.ReadTimeout,
		WriteTimeout: cfg.HTTP.Server.WriteTimeout,
		IdleTimeout:  cfg.HTTP.Server.IdleTimeout,
	}

	go func() {
		l.Info("starting http server", "port", cfg.HTTP.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")
	close(sweepDone)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Fatal("server forced to shutdown", "error", err)
	}

	l.Info("server stopped")
}

// runSweeps evicts expired disk entries and expired offline regions on their
// configured intervals until done is closed.
func runSweeps(cfg *config.Config, disk *cache.Disk, st *store.Store, l logger.Logger, done <-chan struct{}) {
	diskTicker := time.NewTicker(cfg.Cache.SweepInterval)
	defer diskTicker.Stop()
	storeTicker := time.NewTicker(cfg.Store.SweepInterval)
	defer storeTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-diskTicker.C:
			if removed := disk.Sweep(); removed > 0 {
				l.Info("disk cache sweep", "removed", removed)
			}
			metrics.DiskCacheBytes.Set(float64(disk.Size()))
		case <-storeTicker.C:
			if removed := st.ClearExpired(); removed > 0 {
				l.Info("expired regions cleared", "removed", removed)
			}
		}
	}
}

func splitSubdomains(subs []string) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
