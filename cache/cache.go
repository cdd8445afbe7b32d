// Package cache implements the two-tier response cache: a process-lifetime
// volatile tier in front of a durable tier that survives restarts. TTL is a
// property of the namespace, not the individual key.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nbekov/ytscout/telemetry"
)

// Namespace partitions the cache by resource class.
type Namespace string

const (
	NSVideo    Namespace = "video"
	NSSearch   Namespace = "search"
	NSChannel  Namespace = "channel"
	NSCategory Namespace = "category" // taxonomy, effectively permanent
)

// Durable is the restart-surviving second tier. A nil Durable degrades the
// cache to memory-only.
type Durable interface {
	GetEntry(ctx context.Context, namespace, key string) (payload []byte, createdAt time.Time, ok bool, err error)
	PutEntry(ctx context.Context, namespace, key string, payload []byte, createdAt time.Time) error
}

// TTLs holds the per-namespace freshness windows. A zero duration means the
// namespace never expires.
type TTLs struct {
	Video   time.Duration
	Search  time.Duration
	Channel time.Duration
}

// DefaultTTLs mirrors the historical constants: video 6h, search 12h, channel 24h.
func DefaultTTLs() TTLs {
	return TTLs{Video: 6 * time.Hour, Search: 12 * time.Hour, Channel: 24 * time.Hour}
}

type memEntry struct {
	payload   []byte
	createdAt time.Time
}

// Cache is safe for concurrent use. Concurrent misses on the same cold key are
// not coalesced; both fills write the same payload and last write wins.
type Cache struct {
	mu      sync.RWMutex
	mem     map[string]memEntry
	durable Durable
	ttls    TTLs
	now     func() time.Time
}

// New builds a cache over the given durable tier (nil for memory-only).
func New(durable Durable, ttls TTLs) *Cache {
	return &Cache{
		mem:     make(map[string]memEntry),
		durable: durable,
		ttls:    ttls,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Get returns the payload for (namespace, key) if a fresh entry exists in
// either tier. A durable hit is promoted into the volatile tier.
func (c *Cache) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool) {
	k := string(ns) + ":" + key

	c.mu.RLock()
	e, ok := c.mem[k]
	c.mu.RUnlock()
	if ok && c.fresh(ns, e.createdAt) {
		telemetry.Inc(telemetry.CacheHitsMemory)
		return e.payload, true
	}

	if c.durable != nil {
		payload, createdAt, found, err := c.durable.GetEntry(ctx, string(ns), key)
		if err != nil {
			slog.Warn("durable cache read failed", slog.String("ns", string(ns)), slog.Any("err", err))
		} else if found && c.fresh(ns, createdAt) {
			c.mu.Lock()
			c.mem[k] = memEntry{payload: payload, createdAt: createdAt}
			c.mu.Unlock()
			telemetry.Inc(telemetry.CacheHitsDurable)
			return payload, true
		}
	}

	telemetry.Inc(telemetry.CacheMisses)
	return nil, false
}

// Put writes through both tiers. A durable write failure is logged, not
// surfaced: the volatile tier still serves until restart.
func (c *Cache) Put(ctx context.Context, ns Namespace, key string, payload []byte) {
	k := string(ns) + ":" + key
	now := c.now()

	c.mu.Lock()
	c.mem[k] = memEntry{payload: payload, createdAt: now}
	c.mu.Unlock()

	if c.durable != nil {
		if err := c.durable.PutEntry(ctx, string(ns), key, payload, now); err != nil {
			slog.Warn("durable cache write failed", slog.String("ns", string(ns)), slog.String("key", key), slog.Any("err", err))
		}
	}
}

func (c *Cache) fresh(ns Namespace, createdAt time.Time) bool {
	ttl := c.ttl(ns)
	if ttl == 0 {
		return true
	}
	return c.now().Sub(createdAt) < ttl
}

func (c *Cache) ttl(ns Namespace) time.Duration {
	switch ns {
	case NSVideo:
		return c.ttls.Video
	case NSSearch:
		return c.ttls.Search
	case NSChannel:
		return c.ttls.Channel
	default:
		return 0
	}
}
