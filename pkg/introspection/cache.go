package introspection

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TTLCache memoizes fetch results per key for a fixed TTL. Concurrent misses
// on the same key share one fetch. Errors are never cached. A TTL of zero or
// less disables caching.
type TTLCache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry[T]
	group   singleflight.Group
}

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry[T]),
	}
}

// Peek returns the cached value for key if it has not expired.
func (c *TTLCache[T]) Peek(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.valid(e) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetOrFetch returns the cached value for key, calling fetch on a miss. The
// bool result reports a cache hit.
func (c *TTLCache[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, bool, error) {
	if v, ok := c.Peek(key); ok {
		return v, true, nil
	}
	if c.ttl <= 0 {
		v, err := fetch(ctx)
		return v, false, err
	}

	for attempt := 0; ; attempt++ {
		v, err, shared := c.group.Do(key, func() (any, error) {
			// A caller that lost the race may find the value already stored.
			if v, ok := c.Peek(key); ok {
				return v, nil
			}
			v, err := fetch(ctx)
			if err != nil {
				return v, err
			}
			c.mu.Lock()
			c.entries[key] = cacheEntry[T]{value: v, fetchedAt: c.now()}
			c.mu.Unlock()
			return v, nil
		})
		if err != nil {
			// The shared fetch ran under another caller's context. If that
			// context ended while ours is live, fetch again under ours.
			if attempt == 0 && shared && ctx.Err() == nil && isContextError(err) {
				continue
			}
			var zero T
			return zero, false, err
		}
		return v.(T), false, nil
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Invalidate drops key.
func (c *TTLCache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[T])
	c.mu.Unlock()
}

func (c *TTLCache[T]) valid(e cacheEntry[T]) bool {
	return c.ttl > 0 && c.now().Sub(e.fetchedAt) < c.ttl
}
