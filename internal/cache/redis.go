package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"insightlearn/internal/config"
)

// Cache defines the interface for a caching implementation. The byte
// cache carries API read-through entries such as translation records;
// the best-effort distributed lock keeps two workers from translating
// the same lesson into the same language at once.
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache
	Delete(ctx context.Context, key string) error

	// AcquireLock takes the named lock for at most ttl. It reports
	// false when another holder has it.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseLock drops the named lock.
	ReleaseLock(ctx context.Context, key string) error

	// Ping tests the connection to the cache
	Ping(ctx context.Context) error

	// Close releases resources used by the cache
	Close() error
}

// ErrCacheMiss is returned when a key is not found in the cache
var ErrCacheMiss = fmt.Errorf("cache miss")

// TranslationRecordKey is the key under which a lesson's translation
// record for one target language is cached. The API layer populates
// it; the translation worker invalidates it when the record moves.
func TranslationRecordKey(lessonID, targetLanguage string) string {
	return fmt.Sprintf("translation:%s:%s", lessonID, targetLanguage)
}

// RedisCache implements the Cache interface using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, err
	}

	log.Info().
		Str("address", cfg.Address).
		Str("prefix", cfg.Prefix).
		Int("db", cfg.DB).
		Msg("Redis cache initialized successfully")

	return &RedisCache{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

// formatKey adds the prefix to the key
func (c *RedisCache) formatKey(key string) string {
	return c.prefix + ":" + key
}

// Get retrieves a value from the cache
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	formattedKey := c.formatKey(key)

	result, err := c.client.Get(ctx, formattedKey).Bytes()
	if err == redis.Nil {
		log.Debug().Str("key", formattedKey).Msg("Cache miss")
		return nil, ErrCacheMiss
	} else if err != nil {
		log.Error().Err(err).Str("key", formattedKey).Msg("Error getting value from Redis")
		return nil, err
	}

	log.Debug().Str("key", formattedKey).Int("size", len(result)).Msg("Cache hit")
	return result, nil
}

// Set stores a value in the cache with an optional TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	formattedKey := c.formatKey(key)

	if err := c.client.Set(ctx, formattedKey, value, ttl).Err(); err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Int("size", len(value)).
			Dur("ttl", ttl).
			Msg("Error setting value in Redis")
		return err
	}

	log.Debug().Str("key", formattedKey).Int("size", len(value)).Dur("ttl", ttl).Msg("Cached value")
	return nil
}

// Delete removes a key from the cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	formattedKey := c.formatKey(key)

	if err := c.client.Del(ctx, formattedKey).Err(); err != nil {
		log.Error().Err(err).Str("key", formattedKey).Msg("Error deleting key from Redis")
		return err
	}

	log.Debug().Str("key", formattedKey).Msg("Deleted key from cache")
	return nil
}

// AcquireLock takes the named lock with SETNX semantics. The TTL
// bounds how long a crashed holder can keep the lock parked.
func (c *RedisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	formattedKey := c.formatKey("lock:" + key)

	ok, err := c.client.SetNX(ctx, formattedKey, time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		log.Error().Err(err).Str("key", formattedKey).Msg("Error acquiring lock")
		return false, err
	}

	log.Debug().Str("key", formattedKey).Bool("acquired", ok).Dur("ttl", ttl).Msg("Lock attempt")
	return ok, nil
}

// ReleaseLock drops the named lock.
func (c *RedisCache) ReleaseLock(ctx context.Context, key string) error {
	formattedKey := c.formatKey("lock:" + key)

	if err := c.client.Del(ctx, formattedKey).Err(); err != nil {
		log.Error().Err(err).Str("key", formattedKey).Msg("Error releasing lock")
		return err
	}

	log.Debug().Str("key", formattedKey).Msg("Released lock")
	return nil
}

// Ping tests the connection to the cache
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Error pinging Redis")
		return err
	}
	return nil
}

// Close releases resources used by the cache
func (c *RedisCache) Close() error {
	log.Info().Msg("Closing Redis cache connection")
	return c.client.Close()
}
