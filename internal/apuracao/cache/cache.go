// Package cache stores draw Selections in Redis. A draw is a pure function of
// its dataset and parameters, so a cached Selection is always the answer the
// walker would give again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/executor"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/walker"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/resilience"
)

const keyPrefix = "draw:"

// Backend is the subset of pkg/redis the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// DrawCache deduplicates concurrent identical draws and caches their
// Selections. Redis failures open the circuit and draws run uncached.
type DrawCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *DrawCache {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("draw-cache", resilience.CircuitBreakerConfig{})
	}
	return &DrawCache{
		backend: backend,
		ttl:     ttl,
		breaker: breaker,
		metrics: m,
		logger:  slog.Default().With("component", "draw-cache"),
	}
}

// Get returns the cached Selection for req, if any.
func (c *DrawCache) Get(ctx context.Context, mode walker.Mode, req *executor.DrawRequest) (*walker.Selection, bool) {
	key := BuildKey(mode, req)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if data == nil {
		c.miss()
		return nil, false
	}
	var sel walker.Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "key", key)
	return &sel, true
}

// Set stores sel for req; failures are logged and swallowed.
func (c *DrawCache) Set(ctx context.Context, mode walker.Mode, req *executor.DrawRequest, sel *walker.Selection) {
	key := BuildKey(mode, req)
	data, err := json.Marshal(sel)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached Selection or runs computeFn once for all
// concurrent callers with the same key. The bool reports a cache hit.
func (c *DrawCache) GetOrCompute(
	ctx context.Context,
	mode walker.Mode,
	req *executor.DrawRequest,
	computeFn func() (*walker.Selection, error),
) (*walker.Selection, bool, error) {
	if sel, ok := c.Get(ctx, mode, req); ok {
		return sel, true, nil
	}
	key := BuildKey(mode, req)
	val, err, _ := c.group.Do(key, func() (any, error) {
		sel, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, mode, req, sel)
		return sel, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*walker.Selection), false, nil
}

// Invalidate drops the cached draws of one dataset, or of every dataset when
// datasetID is empty.
func (c *DrawCache) Invalidate(ctx context.Context, datasetID string) (int64, error) {
	pattern := keyPrefix + "*"
	if datasetID != "" {
		pattern = keyPrefix + datasetID + ":*"
	}
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "dataset_id", datasetID, "keys_deleted", deleted)
	return deleted, nil
}

func (c *DrawCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the Redis circuit state.
func (c *DrawCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func (c *DrawCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *DrawCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey is "draw:<dataset>:<hash>" where the hash covers the mode, the
// drawn number and series, and the ignored keys sorted and deduplicated, so
// requests that differ only in key order share an entry.
func BuildKey(mode walker.Mode, req *executor.DrawRequest) string {
	raw := strings.Join([]string{
		string(mode),
		req.DrawnNumber,
		req.DrawnPartition,
		strings.Join(normalizeKeys(req.IgnoredKeys), "\x1f"),
	}, "|")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, req.DatasetID, hash[:16])
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
