// Package cache provides an optional answer cache in front of the
// answering engine. The external collaborator reloads its data on
// every invocation; caching by query sidesteps that cost without
// changing the relay contract (same query, same deterministic answer).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mikhail-dubov/answerd/internal/domain"
	"github.com/mikhail-dubov/answerd/internal/metrics"
)

// ErrKeyNotFound signals a cache miss at the store level.
var ErrKeyNotFound = errors.New("cache: key not found")

// store is the consumer interface for the answer cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Compile-time check: CachedEngine implements domain.Engine.
var _ domain.Engine = (*CachedEngine)(nil)

// CachedEngine caches raw answer payloads in a key-value store.
// Store failures degrade to cache misses; they never fail the request.
type CachedEngine struct {
	inner     domain.Engine
	store     store
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// New creates a caching decorator around an engine.
func New(inner domain.Engine, s store, keyPrefix string, ttl time.Duration, logger *zap.Logger) *CachedEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEngine{
		inner:     inner,
		store:     s,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

// Answer returns a cached payload or invokes the inner engine.
// Only successful answers are cached; engine failures pass through.
func (c *CachedEngine) Answer(ctx context.Context, query string) ([]byte, error) {
	key := c.cacheKey(query)

	if out, ok := c.getFromCache(ctx, key); ok {
		metrics.AnswerCacheTotal.WithLabelValues("hit").Inc()
		return out, nil
	}

	metrics.AnswerCacheTotal.WithLabelValues("miss").Inc()

	out, err := c.inner.Answer(ctx, query)
	if err != nil {
		return nil, err
	}

	c.putToCache(ctx, key, out)
	return out, nil
}

// HealthCheck delegates to the inner engine when it supports checks.
func (c *CachedEngine) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEngine) cacheKey(query string) string {
	h := sha256.Sum256([]byte(query))
	return c.keyPrefix + "answer:" + hex.EncodeToString(h[:])
}

func (c *CachedEngine) getFromCache(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached answer", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (c *CachedEngine) putToCache(ctx context.Context, key string, data []byte) {
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache answer", zap.String("key", key), zap.Error(err))
	}
}
