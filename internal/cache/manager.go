// Package cache wraps Redis for the two hot paths: classification
// results and finished reports, both keyed by a hash of the normalized
// request text so re-asks of the same question hit. Callers treat the
// cache as optional; every operation degrades to a miss when Redis is
// down or disabled.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/types"
)

// ErrCacheMiss marks a key that is not present.
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss reports whether err is a miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Manager is the Redis-backed cache.
type Manager struct {
	redis      *redis.Client
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewManager connects to Redis and verifies the connection.
func NewManager(cfg config.RedisConfig, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info("cache connected",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize),
	)
	return &Manager{
		redis:      client,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger.With(zap.String("component", "cache")),
	}, nil
}

// Get returns the string value at key.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	val, err := m.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get: %w", err)
	}
	return val, nil
}

// Set stores value at key. A zero ttl uses the configured default.
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// GetJSON unmarshals the value at key into dest.
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("unmarshal cached value: %w", err)
	}
	return nil
}

// SetJSON marshals value and stores it at key.
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete removes keys.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Ping probes the connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

// Close releases the client.
func (m *Manager) Close() error {
	return m.redis.Close()
}

// report cache

// reportKey hashes the normalized request text. Case and whitespace
// differences map to the same key.
func reportKey(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(norm))
	return "report:" + hex.EncodeToString(sum[:])
}

// SetReport caches a finished report under the request text that
// produced it.
func (m *Manager) SetReport(ctx context.Context, text string, report *types.Report, ttl time.Duration) error {
	return m.SetJSON(ctx, reportKey(text), report, ttl)
}

// GetReport returns the cached report for a request text, or
// ErrCacheMiss.
func (m *Manager) GetReport(ctx context.Context, text string) (*types.Report, error) {
	var report types.Report
	if err := m.GetJSON(ctx, reportKey(text), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ClassifyCache adapts the manager to the classifier's miss-tolerant
// interface. A nil receiver behaves as an always-miss cache, so callers
// can pass it through unconditionally.
type ClassifyCache struct {
	manager *Manager
}

// NewClassifyCache wraps a manager; manager may be nil.
func NewClassifyCache(manager *Manager) *ClassifyCache {
	return &ClassifyCache{manager: manager}
}

func (c *ClassifyCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.manager == nil {
		return "", false
	}
	val, err := c.manager.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *ClassifyCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.manager == nil {
		return
	}
	_ = c.manager.Set(ctx, key, value, ttl)
}
