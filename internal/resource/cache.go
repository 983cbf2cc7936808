// Package resource provides the bounded, keyed cache that owns long-lived
// per-network resources such as RPC clients and database pools.
package resource

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxEntries bounds a cache built with a zero Policy.
	DefaultMaxEntries = 64
	// DefaultCreateTimeout bounds a shared create when Policy sets none.
	DefaultCreateTimeout = 30 * time.Second
)

// Policy controls size and idle expiry. A zero IdleTTL disables expiry.
// MaxEntries bounds the cached keys; values still leased when their key is
// dropped stay open until released. CreateTimeout bounds one shared create.
type Policy struct {
	MaxEntries    int
	IdleTTL       time.Duration
	CreateTimeout time.Duration
	Now           func() time.Time
}

// EvictFunc is called, outside the cache lock, once for every value that
// leaves the cache and has no outstanding lease.
type EvictFunc[V any] func(key string, value V)

type entry[V any] struct {
	key      string
	value    V
	lastUsed time.Time
	refs     int
	retired  bool
	closed   bool
}

// Cache is a concurrency-safe LRU of lazily created, leased values.
// Concurrent creations of the same key are collapsed into one call.
type Cache[V any] struct {
	mu      sync.Mutex
	entries lru.BasicLRU[string, *entry[V]]
	policy  Policy
	onEvict EvictFunc[V]
	group   singleflight.Group
}

// New builds a cache. onEvict may be nil.
func New[V any](policy Policy, onEvict EvictFunc[V]) *Cache[V] {
	if policy.MaxEntries <= 0 {
		policy.MaxEntries = DefaultMaxEntries
	}
	if policy.CreateTimeout <= 0 {
		policy.CreateTimeout = DefaultCreateTimeout
	}
	if policy.Now == nil {
		policy.Now = time.Now
	}
	return &Cache[V]{
		entries: lru.NewBasicLRU[string, *entry[V]](policy.MaxEntries),
		policy:  policy,
		onEvict: onEvict,
	}
}

// Acquire returns the value of key, building it with create on a miss, and a
// release func the caller must call once it is done with the value. Release
// is idempotent. A value dropped from the cache while leased is handed to the
// evict hook on its last release.
//
// Concurrent misses share one create, detached from the callers'
// cancellation and bounded by Policy.CreateTimeout. A caller whose ctx ends
// stops waiting without failing the others. A failed create caches nothing.
func (c *Cache[V]) Acquire(ctx context.Context, key string, create func(context.Context) (V, error)) (V, func(), error) {
	var zero V
	for {
		if err := ctx.Err(); err != nil {
			return zero, nil, err
		}
		if e := c.retainKey(key); e != nil {
			return e.value, c.releaser(e), nil
		}

		ch := c.group.DoChan(key, func() (interface{}, error) {
			return c.create(ctx, key, create)
		})
		select {
		case <-ctx.Done():
			return zero, nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return zero, nil, res.Err
			}
			if e := res.Val.(*entry[V]); c.retain(e) {
				return e.value, c.releaser(e), nil
			}
			// Evicted and closed before this caller leased it; build again.
		}
	}
}

func (c *Cache[V]) create(ctx context.Context, key string, create func(context.Context) (V, error)) (*entry[V], error) {
	c.mu.Lock()
	if e, ok := c.entries.Peek(key); ok && !c.expiredLocked(e, c.policy.Now()) {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.policy.CreateTimeout)
	defer cancel()
	value, err := create(createCtx)
	if err != nil {
		return nil, err
	}
	return c.put(key, value), nil
}

// Invalidate drops key. It reports whether key was present.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	e, ok := c.entries.Peek(key)
	var closing []*entry[V]
	if ok {
		c.entries.Remove(key)
		closing = c.retireLocked(closing, e)
	}
	c.mu.Unlock()

	c.evictAll(closing)
	return ok
}

// InvalidatePrefix drops every key starting with prefix and returns how many were dropped.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	var (
		closing []*entry[V]
		dropped int
	)

	c.mu.Lock()
	for _, key := range c.entries.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if e, ok := c.entries.Peek(key); ok {
			c.entries.Remove(key)
			closing = c.retireLocked(closing, e)
			dropped++
		}
	}
	c.mu.Unlock()

	c.evictAll(closing)
	return dropped
}

// Len returns the number of cached keys, expired ones included until next touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge drops every key.
func (c *Cache[V]) Purge() {
	c.InvalidatePrefix("")
}

// retainKey leases the live entry of key. An idle expired entry is dropped.
func (c *Cache[V]) retainKey(key string) *entry[V] {
	c.mu.Lock()
	e, ok := c.entries.Get(key)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	now := c.policy.Now()
	if c.expiredLocked(e, now) {
		c.entries.Remove(key)
		closing := c.retireLocked(nil, e)
		c.mu.Unlock()
		c.evictAll(closing)
		return nil
	}
	e.refs++
	e.lastUsed = now
	c.mu.Unlock()
	return e
}

// retain leases e unless it has already been closed.
func (c *Cache[V]) retain(e *entry[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.closed {
		return false
	}
	e.refs++
	e.lastUsed = c.policy.Now()
	return true
}

func (c *Cache[V]) releaser(e *entry[V]) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.refs--
			e.lastUsed = c.policy.Now()
			var closing []*entry[V]
			if e.retired {
				closing = c.retireLocked(nil, e)
			}
			c.mu.Unlock()
			c.evictAll(closing)
		})
	}
}

func (c *Cache[V]) expiredLocked(e *entry[V], now time.Time) bool {
	return e.refs == 0 && c.policy.IdleTTL > 0 && now.Sub(e.lastUsed) > c.policy.IdleTTL
}

// retireLocked marks e as dropped and appends it to closing once no lease is left.
func (c *Cache[V]) retireLocked(closing []*entry[V], e *entry[V]) []*entry[V] {
	e.retired = true
	if e.refs > 0 || e.closed {
		return closing
	}
	e.closed = true
	return append(closing, e)
}

func (c *Cache[V]) put(key string, value V) *entry[V] {
	e := &entry[V]{key: key, value: value, lastUsed: c.policy.Now()}
	var closing []*entry[V]

	c.mu.Lock()
	if old, ok := c.entries.Peek(key); ok {
		c.entries.Remove(key)
		closing = c.retireLocked(closing, old)
	} else if c.entries.Len() >= c.policy.MaxEntries {
		if _, oldest, ok := c.entries.RemoveOldest(); ok {
			closing = c.retireLocked(closing, oldest)
		}
	}
	c.entries.Add(key, e)
	c.mu.Unlock()

	c.evictAll(closing)
	return e
}

func (c *Cache[V]) evictAll(closing []*entry[V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range closing {
		c.onEvict(e.key, e.value)
	}
}
