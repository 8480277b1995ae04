package resilience

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a cached listing stays fresh.
const DefaultCacheTTL = 30 * time.Second

// Cache holds one value for a short TTL. Invalidate drops it at once and also
// prevents loads that started before the invalidation from storing their
// result. Concurrent misses share a single load.
//
// Cached values are shared between callers and must be treated as read-only.
type Cache[T any] struct {
	name string
	ttl  time.Duration
	opts Options

	mu       sync.Mutex
	value    T
	loadedAt time.Time
	valid    bool
	gen      uint64

	group singleflight.Group
}

// NewCache returns an empty cache. name labels its metrics.
func NewCache[T any](name string, ttl time.Duration, opts Options) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache[T]{name: name, ttl: ttl, opts: opts.withDefaults()}
}

// Get returns the cached value if it is present and fresh.
func (c *Cache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && c.opts.Clock.Now().Sub(c.loadedAt) < c.ttl {
		return c.value, true
	}
	var zero T
	return zero, false
}

// Invalidate discards the cached value.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.valid = false
	c.gen++
}

// GetOrLoad returns the cached value or calls load to refresh it. Callers that
// miss at the same time, and have not been separated by an Invalidate, wait
// for one shared load. The load is not cancelled with any one caller's ctx;
// a caller whose ctx ends stops waiting and the others keep the result.
func (c *Cache[T]) GetOrLoad(ctx context.Context, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(); ok {
		c.opts.Metrics.CacheLookup(c.name, true)
		return v, nil
	}
	c.opts.Metrics.CacheLookup(c.name, false)

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.store(gen, val)
		return val, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (c *Cache[T]) store(gen uint64, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.value = v
	c.loadedAt = c.opts.Clock.Now()
	c.valid = true
}
