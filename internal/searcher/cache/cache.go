// Package cache memoizes search results in Redis. Keys include the index
// generation, so a reload never serves results computed against an older
// snapshot.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/resilience"
	pkgredis "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/redis"
)

const keyPrefix = "search:"

// Store is the key/value backend. *pkgredis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Options struct {
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics metrics.Recorder
	// IsMiss reports whether a Store error means the key is absent rather
	// than a backend failure. It defaults to pkgredis.IsNilError.
	IsMiss func(error) bool
	// OpTimeout bounds each backend call. Zero means 100ms.
	OpTimeout time.Duration
	// Breaker guards the backend. Nil builds one that opens after five
	// consecutive failures.
	Breaker *resilience.CircuitBreaker
}

type QueryCache struct {
	store     Store
	ttl       time.Duration
	isMiss    func(error) bool
	opTimeout time.Duration
	breaker   *resilience.CircuitBreaker
	group     singleflight.Group
	logger    *slog.Logger
	metrics   metrics.Recorder
	hits      atomic.Int64
	misses    atomic.Int64
}

func New(store Store, opts Options) *QueryCache {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop
	}
	if opts.IsMiss == nil {
		opts.IsMiss = pkgredis.IsNilError
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 100 * time.Millisecond
	}
	l := logger.OrDefault(opts.Logger, "query-cache")
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			Logger:           opts.Logger,
		})
	}
	return &QueryCache{
		store:     store,
		ttl:       opts.TTL,
		isMiss:    opts.IsMiss,
		opTimeout: opts.OpTimeout,
		breaker:   opts.Breaker,
		logger:    l,
		metrics:   opts.Metrics,
	}
}

// call runs one backend operation under the breaker and the per-call
// timeout.
func (c *QueryCache) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.opTimeout, name, fn)
	})
}

// Key derives the cache key of a normalized request against generation.
// Requests differing only in whitespace between query words share a key.
func Key(generation uint64, req executor.Request) string {
	occurs := make([]string, len(req.Occurs))
	for i, o := range req.Occurs {
		occurs[i] = o.String()
	}
	raw := fmt.Sprintf("gen=%d|limit=%d|fields=%s|occurs=%s|q=%s",
		generation,
		req.Limit,
		strings.Join(req.Fields, ","),
		strings.Join(occurs, ","),
		strings.Join(strings.Fields(req.Query), " "),
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// Get returns the cached result for key. Backend and decoding failures are
// logged and count as misses. While the breaker is open the backend is not
// contacted.
func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data []byte
	err := c.call(ctx, "cache get", func(ctx context.Context) error {
		v, err := c.store.Get(ctx, key)
		if err != nil && c.isMiss(err) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Debug("cache bypassed", "key", key, "error", err)
		} else {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == nil {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.call(ctx, "cache set", func(ctx context.Context) error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key, or computes and stores it.
// Concurrent misses on one key share a single computation. The bool reports
// a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
