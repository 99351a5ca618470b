package cache

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/civicguard/internal/audit"
	"github.com/raaihank/civicguard/internal/logger"
	"go.uber.org/zap"
)

// RedisCounter keeps outcome, redaction and leak counts in Redis hashes so
// that several server instances share one view
type RedisCounter struct {
	client *redis.Client
	config *Config
	logger *logger.Logger
}

// NewRedisCounter connects to Redis
func NewRedisCounter(config *Config, log *logger.Logger) (*RedisCounter, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns
	if config.KeyPrefix == "" {
		config.KeyPrefix = "civicguard"
	}
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}

	c := &RedisCounter{
		client: redis.NewClient(opts),
		config: config,
		logger: log.WithComponent("stats_cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("Stats cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("retention", config.Retention))

	return c, nil
}

func (c *RedisCounter) key(name string) string {
	return c.config.KeyPrefix + ":stats:" + name
}

// Record increments the counters for one event in a single pipeline
func (c *RedisCounter) Record(ctx context.Context, e audit.Event) error {
	pipe := c.client.TxPipeline()

	pipe.HIncrBy(ctx, c.key("outcomes"), e.Outcome, 1)
	for _, f := range e.Findings {
		pipe.HIncrBy(ctx, c.key("redactions"), f.Rule, int64(f.Count))
	}
	for _, term := range e.LeakTerms() {
		pipe.HIncrBy(ctx, c.key("leak_terms"), term, 1)
	}
	pipe.SetNX(ctx, c.key("since"), time.Now().UTC().Format(time.RFC3339), 0)
	for _, name := range []string{"outcomes", "redactions", "leak_terms", "since"} {
		pipe.Expire(ctx, c.key(name), c.config.Retention)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to record stats", zap.Error(err), zap.String("outcome", e.Outcome))
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

// GetStats reads the counters
func (c *RedisCounter) GetStats(ctx context.Context) (*Stats, error) {
	stats := newStats("redis", time.Time{})

	for name, dst := range map[string]map[string]int64{
		"outcomes":   stats.Outcomes,
		"redactions": stats.Redactions,
		"leak_terms": stats.LeakTerms,
	} {
		values, err := c.client.HGetAll(ctx, c.key(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for k, v := range values {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.logger.Warn("Skipping malformed counter", zap.String("hash", name), zap.String("field", k))
				continue
			}
			dst[k] = n
		}
	}

	if since, err := c.client.Get(ctx, c.key("since")).Result(); err == nil {
		if t, perr := time.Parse(time.RFC3339, since); perr == nil {
			stats.Since = t
		}
	} else if err != redis.Nil {
		return nil, fmt.Errorf("failed to read stats start: %w", err)
	}

	if info, err := c.client.Info(ctx, "memory").Result(); err == nil {
		stats.MemoryUsage = parseUsedMemory(info)
	}
	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	stats.total()
	return stats, nil
}

// Clear removes all keys under the configured prefix
func (c *RedisCounter) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":stats:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan stats keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("Failed to delete stats keys", zap.Error(err))
		return fmt.Errorf("failed to delete stats keys: %w", err)
	}

	c.logger.Info("Stats cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *RedisCounter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// parseUsedMemory pulls used_memory out of an INFO reply
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
