// Package cache provides a TTL key/value cache persisted through a pluggable Store
// and mirrored in memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPrefix namespaces every key.
	DefaultPrefix = "collivery."
	// DefaultGrace is subtracted from an entry's validity by Has.
	DefaultGrace = 30 * time.Second
	// DefaultMirrorTTL disables the in-memory mirror, so every lookup sees
	// writes made through other caches on the same store.
	DefaultMirrorTTL = time.Duration(0)
)

// entry is the persisted representation of a cached value.
type entry struct {
	Value      json.RawMessage `json:"value"`
	ValidUntil time.Time       `json:"valid_until"`
}

// mirrored is an entry held in memory together with the time it was read or written.
type mirrored struct {
	entry
	seenAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	store     Store
	prefix    string
	grace     time.Duration
	mirrorTTL time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	mirror    map[string]mirrored
	lastSweep time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithGrace overrides the grace window applied by Has.
func WithGrace(d time.Duration) Option {
	return func(c *Cache) { c.grace = d }
}

// WithMirrorTTL keeps entries in memory for up to d before the store is read
// again. Writes made through another Cache on the same store stay invisible for
// at most d. Zero disables the mirror.
func WithMirrorTTL(d time.Duration) Option {
	return func(c *Cache) { c.mirrorTTL = d }
}

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = strings.ToLower(prefix) }
}

// New creates a cache backed by store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		prefix: DefaultPrefix,
		grace:     DefaultGrace,
		mirrorTTL: DefaultMirrorTTL,
		now:       time.Now,
		mirror:    make(map[string]mirrored),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the normalised form of key as it is handed to the store.
func (c *Cache) Key(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if !strings.HasPrefix(key, c.prefix) {
		key = c.prefix + key
	}
	return key
}

// Has reports whether key holds a value that stays valid past the grace window.
// An entry that Has rejects may still be returned by Get.
func (c *Cache) Has(ctx context.Context, key string) bool {
	e, ok := c.load(ctx, c.Key(key))
	if !ok {
		return false
	}
	return c.now().Before(e.ValidUntil.Add(-c.grace))
}

// Get decodes the value stored under key into dst. It returns false when the
// entry is missing, expired, or cannot be decoded into dst.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	e, ok := c.load(ctx, c.Key(key))
	if !ok || !c.now().Before(e.ValidUntil) {
		return false
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return false
	}
	return true
}

// Put stores value for ttl. The in-memory mirror is only updated once the store
// accepted the write.
func (c *Cache) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value %q: %w", key, err)
	}
	return c.write(ctx, c.Key(key), entry{Value: raw, ValidUntil: c.now().Add(ttl)})
}

// Forget replaces the entry under key with an expired tombstone.
func (c *Cache) Forget(ctx context.Context, key string) error {
	return c.write(ctx, c.Key(key), entry{Value: json.RawMessage("null")})
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) write(ctx context.Context, name string, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry %q: %w", name, err)
	}
	if err := c.store.Save(ctx, name, data); err != nil {
		return fmt.Errorf("saving cache entry %q: %w", name, err)
	}

	c.remember(name, e)
	return nil
}

func (c *Cache) load(ctx context.Context, name string) (entry, bool) {
	now := c.now()

	c.mu.RLock()
	m, ok := c.mirror[name]
	c.mu.RUnlock()
	if ok && c.fresh(m, now) {
		return m.entry, true
	}

	data, err := c.store.Load(ctx, name)
	if err != nil {
		c.drop(name)
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.drop(name)
		return entry{}, false
	}

	c.remember(name, e)
	return e, true
}

// fresh reports whether a mirrored entry may be served without reading the store.
func (c *Cache) fresh(m mirrored, now time.Time) bool {
	return now.Sub(m.seenAt) < c.mirrorTTL && now.Before(m.ValidUntil)
}

func (c *Cache) remember(name string, e entry) {
	if c.mirrorTTL <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(e.ValidUntil) {
		c.mirror[name] = mirrored{entry: e, seenAt: now}
	} else {
		delete(c.mirror, name)
	}
	if now.Sub(c.lastSweep) >= c.mirrorTTL {
		for key, m := range c.mirror {
			if !c.fresh(m, now) {
				delete(c.mirror, key)
			}
		}
		c.lastSweep = now
	}
}

func (c *Cache) drop(name string) {
	c.mu.Lock()
	delete(c.mirror, name)
	c.mu.Unlock()
}

// ErrNotFound is returned by a Store when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Store persists encoded cache entries.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}
