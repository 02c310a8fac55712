// Package cache is the process-wide pattern cache. Entries are keyed by a
// BLAKE2b-256 fingerprint of the input text, namespaced per stage and per
// model handle version, bounded in size and expired after a TTL.
package cache

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

const (
	// DefaultCapacity is the maximum number of entries.
	DefaultCapacity = 1000

	// DefaultTTL is how long an entry stays valid after it is written.
	DefaultTTL = time.Hour
)

// Namespaces used by the engine.
const (
	NamespaceDocument = "document"
)

// Fingerprint returns the hex-encoded BLAKE2b-256 digest of text.
func Fingerprint(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Key builds a cache key. version is the model handle version the value was
// computed with; use 0 for model-independent values.
func Key(namespace string, version int64, fingerprint string) string {
	return namespace + "/v" + strconv.FormatInt(version, 10) + "/" + fingerprint
}

// fingerprintOf returns the fingerprint component of a key built by Key.
func fingerprintOf(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Fingerprinted is implemented by values that record the fingerprint of the
// text they were computed from. Get verifies it against the key.
type Fingerprinted interface {
	SourceFingerprint() string
}

type entry struct {
	value      any
	insertedAt time.Time
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Entries         int    `json:"entries"`
	Capacity        int    `json:"capacity"`
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	Evictions       uint64 `json:"evictions"`
	Inconsistencies uint64 `json:"inconsistencies"`
	Invalidations   uint64 `json:"invalidations"`
}

// HitRate is hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a bounded LRU with per-entry TTL. All methods are safe for
// concurrent use; operations on a single key are linearizable.
type Cache struct {
	lru      *expirable.LRU[string, entry]
	capacity int
	ttl      time.Duration
	logger   logging.Logger

	hits            atomic.Uint64
	misses          atomic.Uint64
	evictions       atomic.Uint64
	inconsistencies atomic.Uint64
	invalidations   atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache with DefaultCapacity and DefaultTTL unless overridden.
func New(opts ...Option) *Cache {
	c := &Cache{
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.Component("pattern-cache"))
	c.lru = expirable.NewLRU[string, entry](c.capacity, func(string, entry) {
		c.evictions.Add(1)
	}, c.ttl)
	return c
}

// Get returns the value stored under key. Expired entries are misses.
func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if f, ok := e.value.(Fingerprinted); ok && f.SourceFingerprint() != fingerprintOf(key) {
		c.discard(key, merrors.CacheInconsistency(key, "stored fingerprint does not match key"))
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key, replacing any previous value. Stored values
// must not be mutated afterwards.
func (c *Cache) Put(key string, value any) {
	c.lru.Add(key, entry{value: value, insertedAt: time.Now()})
}

// Remove deletes key.
func (c *Cache) Remove(key string) {
	c.lru.Remove(key)
}

// InvalidateAll removes every entry. Called whenever a model update commits.
func (c *Cache) InvalidateAll() {
	n := c.lru.Len()
	c.lru.Purge()
	c.invalidations.Add(1)
	c.logger.Info("Pattern cache invalidated", logging.F("entries", n))
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:         c.lru.Len(),
		Capacity:        c.capacity,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		Inconsistencies: c.inconsistencies.Load(),
		Invalidations:   c.invalidations.Load(),
	}
}

// discard drops an inconsistent entry. The caller treats it as a miss and
// recomputes.
func (c *Cache) discard(key string, err error) {
	c.inconsistencies.Add(1)
	c.misses.Add(1)
	c.lru.Remove(key)
	c.logger.Warn("Discarding inconsistent cache entry", logging.F("key", key), logging.Err(err))
}

// Lookup is a typed Get. A value of an unexpected type is an inconsistency:
// it is logged, counted and removed, and Lookup reports a miss.
func Lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		// Get counted a hit; reclassify it.
		c.hits.Add(^uint64(0))
		c.discard(key, merrors.CacheInconsistency(key, fmt.Sprintf("unexpected value type %T", v)))
		return zero, false
	}
	return typed, true
}
