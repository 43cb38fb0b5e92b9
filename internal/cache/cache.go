// Package cache implements the generic key/value cache contract: an
// in-memory store with TTL expiry and a background eviction sweep, used by
// the rest of the module as a single process-wide collaborator alongside
// the DB pool, blob store, and actor registry.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthSnapshot is the point-in-time status the contract requires: current
// size, last sweep time, cumulative evictions, and a rough memory estimate.
type HealthSnapshot struct {
	NumKeys          int
	LastCleanupAt    time.Time
	CleanedCountTotal int64
	ApproxBytes      int64
}

// Store is the cache contract: set, set_ex, get, delete, exists, ttl,
// expire, persist, set_nx, get_and_set, keys, clear, mget, mset, mdelete,
// plus a health snapshot. Every method takes a ctx even though the default
// implementation never suspends on it, so callers can swap in a networked
// implementation (e.g. Redis) without changing call sites.
type Store interface {
	Set(ctx context.Context, key string, value any) error
	SetEx(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (any, bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Persist(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value any) (bool, error)
	GetAndSet(ctx context.Context, key string, value any) (any, bool, error)
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	MGet(ctx context.Context, keys []string) (map[string]any, error)
	MSet(ctx context.Context, kv map[string]any) error
	MDelete(ctx context.Context, keys []string) (int, error)
	Health(ctx context.Context) (HealthSnapshot, error)
}

type entry struct {
	value     any
	expiresAt time.Time // zero means no expiry
	size      int64
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemory is the default Store: a mutex-guarded map plus a ticker-driven
// goroutine that sweeps expired entries. No method ever holds the lock
// across a channel send or other suspension point, so Set/Get/etc. never
// block on the sweep or on each other beyond the map access itself.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]entry
	bytes   int64

	cleanedTotal  int64
	lastCleanupAt atomic.Value // time.Time

	stop chan struct{}
	done chan struct{}
}

// New starts an InMemory cache whose background eviction sweep runs every
// interval. Call Close to stop the sweep goroutine.
func New(interval time.Duration) *InMemory {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &InMemory{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.lastCleanupAt.Store(time.Time{})
	go c.runEviction(interval)
	return c
}

// Close stops the background sweep goroutine. Safe to call once.
func (c *InMemory) Close() {
	close(c.stop)
	<-c.done
}

func (c *InMemory) runEviction(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *InMemory) sweep() {
	now := time.Now()
	var cleaned int64

	c.mu.Lock()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			c.bytes -= e.size
			cleaned++
		}
	}
	c.mu.Unlock()

	if cleaned > 0 {
		atomic.AddInt64(&c.cleanedTotal, cleaned)
	}
	c.lastCleanupAt.Store(now)
}

func approxSize(key string, value any) int64 {
	size := int64(len(key))
	switch v := value.(type) {
	case string:
		size += int64(len(v))
	case []byte:
		size += int64(len(v))
	case nil:
		size += 0
	case int, int32, int64, uint, uint32, uint64, float32, float64, bool:
		size += 8
	default:
		size += int64(len(fmt.Sprintf("%v", v)))
	}
	return size
}

func (c *InMemory) Set(ctx context.Context, key string, value any) error {
	return c.SetEx(ctx, key, value, 0)
}

func (c *InMemory) SetEx(_ context.Context, key string, value any, ttl time.Duration) error {
	e := entry{value: value, size: approxSize(key, value)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.bytes -= old.size
	}
	c.entries[key] = e
	c.bytes += e.size
	c.mu.Unlock()
	return nil
}

func (c *InMemory) Get(_ context.Context, key string) (any, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *InMemory) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.bytes -= e.size
	}
	c.mu.Unlock()
	return ok, nil
}

func (c *InMemory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *InMemory) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return 0, false, nil
	}
	if e.expiresAt.IsZero() {
		return -1, true, nil // exists, no expiry
	}
	return time.Until(e.expiresAt), true, nil
}

func (c *InMemory) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return false, nil
	}
	if ttl <= 0 {
		delete(c.entries, key)
		c.bytes -= e.size
		return true, nil
	}
	e.expiresAt = time.Now().Add(ttl)
	c.entries[key] = e
	return true, nil
}

func (c *InMemory) Persist(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) || e.expiresAt.IsZero() {
		return false, nil
	}
	e.expiresAt = time.Time{}
	c.entries[key] = e
	return true, nil
}

func (c *InMemory) SetNX(_ context.Context, key string, value any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	e := entry{value: value, size: approxSize(key, value)}
	if old, ok := c.entries[key]; ok {
		c.bytes -= old.size
	}
	c.entries[key] = e
	c.bytes += e.size
	return true, nil
}

func (c *InMemory) GetAndSet(_ context.Context, key string, value any) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.entries[key]
	var prevValue any
	prevOK := ok && !old.expired(time.Now())
	if prevOK {
		prevValue = old.value
	}
	if ok {
		c.bytes -= old.size
	}
	e := entry{value: value, size: approxSize(key, value)}
	c.entries[key] = e
	c.bytes += e.size
	return prevValue, prevOK, nil
}

func (c *InMemory) Keys(_ context.Context) ([]string, error) {
	now := time.Now()
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (c *InMemory) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.bytes = 0
	c.mu.Unlock()
	return nil
}

func (c *InMemory) MGet(_ context.Context, keys []string) (map[string]any, error) {
	now := time.Now()
	out := make(map[string]any, len(keys))
	c.mu.RLock()
	for _, k := range keys {
		if e, ok := c.entries[k]; ok && !e.expired(now) {
			out[k] = e.value
		}
	}
	c.mu.RUnlock()
	return out, nil
}

func (c *InMemory) MSet(_ context.Context, kv map[string]any) error {
	c.mu.Lock()
	for k, v := range kv {
		e := entry{value: v, size: approxSize(k, v)}
		if old, ok := c.entries[k]; ok {
			c.bytes -= old.size
		}
		c.entries[k] = e
		c.bytes += e.size
	}
	c.mu.Unlock()
	return nil
}

func (c *InMemory) MDelete(_ context.Context, keys []string) (int, error) {
	c.mu.Lock()
	var n int
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			delete(c.entries, k)
			c.bytes -= e.size
			n++
		}
	}
	c.mu.Unlock()
	return n, nil
}

func (c *InMemory) Health(_ context.Context) (HealthSnapshot, error) {
	c.mu.RLock()
	n := len(c.entries)
	bytes := c.bytes
	c.mu.RUnlock()

	last, _ := c.lastCleanupAt.Load().(time.Time)
	return HealthSnapshot{
		NumKeys:           n,
		LastCleanupAt:     last,
		CleanedCountTotal: atomic.LoadInt64(&c.cleanedTotal),
		ApproxBytes:       bytes,
	}, nil
}

var _ Store = (*InMemory)(nil)
