package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP        HTTP        `envPrefix:"HTTP_"`
		Logger      Logger      `envPrefix:"LOGGER_"`
		Telemetry   Telemetry   `envPrefix:"TELEMETRY_"`
		Cache       Cache       `envPrefix:"CACHE_"`
		Redis       Redis       `envPrefix:"REDIS_"`
		Store       Store       `envPrefix:"STORE_"`
		Fetcher     Fetcher     `envPrefix:"FETCHER_"`
		Coordinator Coordinator `envPrefix:"COORDINATOR_"`
		Decoder     Decoder     `envPrefix:"DECODER_"`
		Downloader  Downloader  `envPrefix:"DOWNLOADER_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"bopmaps-cache"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Cache struct {
		Dir             string        `env:"DIR" envDefault:"./cache"`
		TTL             time.Duration `env:"TTL" envDefault:"168h"`
		ItemsPerBucket  int           `env:"ITEMS_PER_BUCKET" envDefault:"50"`
		MaxItems        int           `env:"MAX_ITEMS" envDefault:"100"`
		DiskBudgetBytes int64         `env:"DISK_BUDGET_BYTES" envDefault:"209715200"`
		SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	}

	Redis struct {
		Enabled  bool          `env:"ENABLED" envDefault:"false"`
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	Store struct {
		Path          string        `env:"PATH" envDefault:"./regions.db"`
		SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"6h"`
	}

	Fetcher struct {
		UpstreamTileURL  string        `env:"TILE_SERVER_URL" envDefault:"https://{s}.tile.openstreetmap.org"`
		UpstreamDataURL  string        `env:"DATA_SERVER_URL" envDefault:"https://overpass.openstreetmap.org/api"`
		Subdomains       []string      `env:"SUBDOMAINS" envDefault:"a,b,c"`
		UserAgent        string        `env:"USER_AGENT" envDefault:"BOPMapsCache/1.0 (https://github.com/raedjah1/bopmaps-cache)"`
		Timeout          time.Duration `env:"TIMEOUT" envDefault:"30s"`
		BaseInterval     time.Duration `env:"BASE_INTERVAL" envDefault:"250ms"`
		MaxConcurrent    int           `env:"MAX_CONCURRENT" envDefault:"8"`
		MaxRetries       int           `env:"MAX_RETRIES" envDefault:"3"`
		OfflineThreshold int           `env:"OFFLINE_THRESHOLD" envDefault:"3"`
		ProbeInterval    time.Duration `env:"PROBE_INTERVAL" envDefault:"30s"`
	}

	Coordinator struct {
		MinFetchInterval time.Duration `env:"MIN_FETCH_INTERVAL" envDefault:"10s"`
		PrefetchDebounce time.Duration `env:"PREFETCH_DEBOUNCE" envDefault:"100ms"`
		PrefetchPause    time.Duration `env:"PREFETCH_PAUSE" envDefault:"100ms"`
		MaxPrefetchTiles int           `env:"MAX_PREFETCH_TILES" envDefault:"16"`
	}

	Decoder struct {
		// Workers <= 0 means size the pool to available cores minus one.
		Workers int `env:"WORKERS" envDefault:"0"`
	}

	Downloader struct {
		SubTileKm    float64 `env:"SUBTILE_KM" envDefault:"4"`
		BytesPerTile int64   `env:"BYTES_PER_TILE" envDefault:"15000"`
		MaxSizeBytes int64   `env:"MAX_SIZE_BYTES" envDefault:"209715200"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
