package devicecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// NewRedisConfigDefaults provides a config with sensible defaults, with the
// address overridable through REDIS_ADDR.
func NewRedisConfigDefaults() *RedisConfig {
	cfg := &RedisConfig{
		Addr:     "localhost:6379",
		CacheTTL: time.Hour,
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	return cfg
}

// RedisCache is a read-through Fetcher backed by Redis, with an optional
// fallback source used on a cache miss.
type RedisCache[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
	fallback    Fetcher[K, V]
}

// NewRedisCache creates and connects a RedisCache. It pings the Redis server
// to ensure connectivity before returning.
func NewRedisCache[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
	fallback Fetcher[K, V],
) (*RedisCache[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisCache[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisCache").Logger(),
		ttl:         cfg.CacheTTL,
		fallback:    fallback,
	}, nil
}

// Fetch checks Redis first. On a miss with a fallback configured, it fetches
// from the fallback, writes the result back to Redis in the background, and
// returns the value.
func (c *RedisCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	value, err := c.fetchFromRedis(ctx, key)
	if err == nil {
		return value, nil
	}

	// redis.Nil is a normal miss; anything else is a genuine problem.
	if !errors.Is(err, redis.Nil) {
		c.logger.Error().Err(err).Msg("Unexpected Redis error during fetch.")
		return *new(V), err
	}

	var zero V
	if c.fallback == nil {
		return zero, fmt.Errorf("key '%v' not found in cache and no fallback is configured", key)
	}

	sourceValue, sourceErr := c.fallback.Fetch(ctx, key)
	if sourceErr != nil {
		return zero, sourceErr
	}

	// Write back off the request path.
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if writeErr := c.write(writeCtx, key, sourceValue); writeErr != nil {
			c.logger.Error().Err(writeErr).Str("key", fmt.Sprintf("%v", key)).Msg("Failed to write to cache in background.")
		}
	}()

	return sourceValue, nil
}

func (c *RedisCache[K, V]) fetchFromRedis(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)
	cachedData, err := c.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		return zero, err
	}

	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		c.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached data.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	c.logger.Debug().Str("key", stringKey).Msg("Redis cache hit.")
	return value, nil
}

func (c *RedisCache[K, V]) write(ctx context.Context, key K, value V) error {
	stringKey := fmt.Sprintf("%v", key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := c.redisClient.Set(ctx, stringKey, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	c.logger.Debug().Str("key", stringKey).Msg("Successfully stored data in Redis cache.")
	return nil
}

// Close closes the Redis client connection.
func (c *RedisCache[K, V]) Close() error {
	if c.redisClient != nil {
		c.logger.Info().Msg("Closing Redis client connection...")
		return c.redisClient.Close()
	}
	return nil
}
