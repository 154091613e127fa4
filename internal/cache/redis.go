package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ClientConfig contains the redis connection settings
type ClientConfig struct {
	URL            string
	MaxConnections int
	MinIdleConns   int
}

// NewClient connects to redis and verifies the connection
func NewClient(ctx context.Context, config ClientConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Entry is one cached extraction result
type Entry struct {
	Kind     string            `json:"kind"`
	Model    string            `json:"model"`
	Records  []json.RawMessage `json:"records"`
	Warnings []string          `json:"warnings,omitempty"`
	CachedAt time.Time         `json:"cached_at"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// ResultCache caches LLM extraction results keyed by the redacted text, so
// only anonymized content ever reaches redis
type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a cache on an existing client
func NewResultCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *ResultCache {
	return &ResultCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Key derives the cache key from the prompt kind and the redacted text
func (c *ResultCache) Key(kind, text string) string {
	hasher := sha256.New()
	hasher.Write([]byte(kind))
	hasher.Write([]byte{0})
	hasher.Write([]byte(text))
	return fmt.Sprintf("%s:llm:%s", c.prefix, hex.EncodeToString(hasher.Sum(nil)))
}

// Get looks up a cached result. Lookup failures are logged and reported
// as a miss.
func (c *ResultCache) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		c.misses.Add(1)
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("Failed to unmarshal cached result", zap.Error(err))
		// Delete corrupted cache entry
		c.client.Del(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit", zap.String("key", key), zap.Int("records", len(entry.Records)))
	return &entry, true
}

// Set stores a result with the configured TTL
func (c *ResultCache) Set(ctx context.Context, key string, entry *Entry) error {
	entry.CachedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("Failed to cache result", zap.Error(err))
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Stats returns hit and miss counters
func (c *ResultCache) Stats() Stats {
	stats := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear removes all cached results
func (c *ResultCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":llm:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// MaskURL masks the password in a redis URL for logging
func MaskURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
