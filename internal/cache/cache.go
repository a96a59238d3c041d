// Package cache provides a generic in-process memoization cache, used by
// the job controller to dedupe asset downloads across books, backed by an
// in-process ristretto store via eko/gocache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	gocache "github.com/eko/gocache/lib/v4/cache"
	gostore "github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
)

// Cache is the generic interface shared by every component that memoizes
// byte-serialized values with a TTL.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	GetWithTTL(ctx context.Context, key string) (T, time.Duration, bool)
	Set(ctx context.Context, key string, val T, ttl time.Duration)
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string) error
}

// ristrettoCache implements Cache[T] on top of gocache+ristretto. Since
// gocache doesn't expose remaining TTL on Get, expirations are tracked
// separately under a mutex.
type ristrettoCache[T any] struct {
	mu      sync.Mutex
	expires map[string]time.Time

	manager *gocache.Cache[T]
}

// New creates a new in-process cache with the given max cost in bytes.
func New[T any](maxCost int64) (Cache[T], error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	rstore := ristretto_store.NewRistretto(rc)
	manager := gocache.New[T](rstore)

	return &ristrettoCache[T]{
		expires: map[string]time.Time{},
		manager: manager,
	}, nil
}

func (c *ristrettoCache[T]) Get(ctx context.Context, key string) (T, bool) {
	v, ttl, ok := c.GetWithTTL(ctx, key)
	return v, ok && (ttl > 0 || ttl == -1)
}

func (c *ristrettoCache[T]) GetWithTTL(ctx context.Context, key string) (T, time.Duration, bool) {
	var zero T
	v, err := c.manager.Get(ctx, key)
	if err != nil {
		return zero, 0, false
	}

	c.mu.Lock()
	exp, tracked := c.expires[key]
	c.mu.Unlock()

	if !tracked {
		return v, -1, true // No expiration was set; treat as always fresh.
	}
	remaining := time.Until(exp)
	if remaining <= 0 {
		_ = c.Delete(ctx, key)
		return zero, 0, false
	}
	return v, remaining, true
}

func (c *ristrettoCache[T]) Set(ctx context.Context, key string, val T, ttl time.Duration) {
	opts := []gostore.Option{}
	if ttl > 0 {
		opts = append(opts, gostore.WithExpiration(ttl))
	}
	_ = c.manager.Set(ctx, key, val, opts...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl > 0 {
		c.expires[key] = time.Now().Add(ttl)
	} else {
		delete(c.expires, key)
	}
}

func (c *ristrettoCache[T]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.expires, key)
	c.mu.Unlock()
	return c.manager.Delete(ctx, key)
}

// Expire removes the entry immediately, forcing the next Get to miss.
func (c *ristrettoCache[T]) Expire(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}
