package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raedjah1/bopmaps-cache/internal/payload"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

// Redis is an optional shared tier consulted between the memory and disk
// tiers, so multiple renderer processes on one device can share hot entries.
// All failures degrade to a miss.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedis(cfg RedisConfig, l logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &Redis{
		client: client,
		ttl:    ttl,
		logger: l,
	}, nil
}

func (r *Redis) keyFor(k Key) string {
	return "mapdata:" + k.String()
}

func (r *Redis) Get(ctx context.Context, k Key) (payload.Payload, bool) {
	raw, err := r.client.Get(ctx, r.keyFor(k)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("redis get failed", "key", k.String(), "error", err)
		}
		return payload.Payload{}, false
	}

	p, err := payload.Decode(raw)
	if err != nil {
		r.logger.Warn("dropping corrupt redis cache entry", "key", k.String(), "error", err)
		r.client.Del(ctx, r.keyFor(k))
		return payload.Payload{}, false
	}

	return p, true
}

func (r *Redis) Put(ctx context.Context, k Key, p payload.Payload) {
	raw, err := p.Encode()
	if err != nil {
		r.logger.Warn("failed to encode payload for redis", "key", k.String(), "error", err)
		return
	}
	if err := r.client.Set(ctx, r.keyFor(k), raw, r.ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", "key", k.String(), "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, k Key) {
	if err := r.client.Del(ctx, r.keyFor(k)).Err(); err != nil {
		r.logger.Warn("redis delete failed", "key", k.String(), "error", err)
	}
}

func (r *Redis) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, "mapdata:*", 0).Iterator()
	for iter.Next(ctx) {
		r.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("redis clear scan failed", "error", err)
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
