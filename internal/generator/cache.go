package generator

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// EvictCause says why an entry left the cache.
type EvictCause string

const (
	CauseSize  EvictCause = "size"
	CauseTime  EvictCause = "time"
	CauseIdle  EvictCause = "idle"
	CausePurge EvictCause = "purge"
)

// Config sizes the cache.
type Config struct {
	Capacity        int
	TTL             time.Duration
	IdleTTL         time.Duration
	HistoryWindow   int
	MemoryWindow    int
	JanitorInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:        1000,
		TTL:             30 * time.Minute,
		IdleTTL:         10 * time.Minute,
		HistoryWindow:   20,
		MemoryWindow:    DefaultMemoryWindow,
		JanitorInterval: time.Minute,
	}
}

type entry struct {
	handle     *Handle
	created    time.Time
	lastAccess time.Time
}

type eviction struct {
	key   Key
	cause EvictCause
}

// Cache hands out one Handle per (session, generation type). Entries expire
// after TTL since creation or IdleTTL since last access, whichever comes
// first, and the least recently used entry goes when capacity is reached.
// Concurrent misses for the same key share a single construction.
type Cache struct {
	model   core.CodeModel
	history core.HistoryStore
	cfg     Config
	logger  *logging.Logger
	now     func() time.Time

	onEvent func(event string)
	onEvict func(key Key, cause EvictCause)

	mu      sync.Mutex
	entries *lru.Cache[Key, *entry]
	cause   EvictCause // cause of the removal in progress, guarded by mu
	evicted []eviction // drained after mu is released

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.logger = l.WithComponent("generator_cache") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver receives hit, miss and evict_<cause> events.
func WithObserver(fn func(event string)) Option {
	return func(c *Cache) { c.onEvent = fn }
}

// WithEvictionListener is called after an entry is evicted.
func WithEvictionListener(fn func(key Key, cause EvictCause)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// NewCache creates a cache. history may be nil.
func NewCache(model core.CodeModel, history core.HistoryStore, cfg Config, opts ...Option) (*Cache, error) {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.HistoryWindow < 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = def.MemoryWindow
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = def.JanitorInterval
	}

	c := &Cache{
		model:   model,
		history: history,
		cfg:     cfg,
		logger:  logging.NewNop(),
		now:     time.Now,
		cause:   CauseSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := lru.NewWithEvict(cfg.Capacity, c.evictedLocked)
	if err != nil {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig, "invalid generator cache capacity").WithCause(err)
	}
	c.entries = entries
	return c, nil
}

// evictedLocked runs inside lru calls, which only happen with mu held.
func (c *Cache) evictedLocked(key Key, _ *entry) {
	c.evicted = append(c.evicted, eviction{key: key, cause: c.cause})
}

// Get returns the handle for the key, constructing it on a miss.
func (c *Cache) Get(ctx context.Context, sessionKey string, t core.GenerationType) (*Handle, error) {
	key := Key{SessionKey: sessionKey, Type: t}
	if h, ok := c.lookup(key); ok {
		c.emit("hit")
		return h, nil
	}

	created := false
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// A concurrent flight may have finished between the miss and here.
		if h, ok := c.lookup(key); ok {
			return h, nil
		}
		created = true
		c.emit("miss")
		h := c.create(context.WithoutCancel(ctx), key)

		now := c.now()
		c.mu.Lock()
		c.entries.Add(key, &entry{handle: h, created: now, lastAccess: now})
		c.mu.Unlock()
		c.flushEvictions()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	if !created {
		// Found on re-lookup or shared from another caller's flight.
		c.emit("hit")
	}
	return v.(*Handle), nil
}

func (c *Cache) lookup(key Key) (*Handle, bool) {
	c.mu.Lock()
	e, ok := c.entries.Get(key)
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	now := c.now()
	if cause, expired := c.expired(e, now); expired {
		c.removeLocked(key, cause)
		c.mu.Unlock()
		c.flushEvictions()
		return nil, false
	}
	e.lastAccess = now
	c.mu.Unlock()
	return e.handle, true
}

func (c *Cache) expired(e *entry, now time.Time) (EvictCause, bool) {
	if now.Sub(e.created) >= c.cfg.TTL {
		return CauseTime, true
	}
	if now.Sub(e.lastAccess) >= c.cfg.IdleTTL {
		return CauseIdle, true
	}
	return "", false
}

func (c *Cache) removeLocked(key Key, cause EvictCause) {
	c.cause = cause
	c.entries.Remove(key)
	c.cause = CauseSize
}

// create builds a handle preloaded with the most recent history.
func (c *Cache) create(ctx context.Context, key Key) *Handle {
	memory := NewMemory(c.cfg.MemoryWindow)
	if c.history != nil && c.cfg.HistoryWindow > 0 {
		msgs, err := c.history.LoadHistory(ctx, key.SessionKey, c.cfg.HistoryWindow)
		if err != nil {
			c.logger.Warn("loading history failed, starting with empty memory",
				"key", key.String(), "error", err)
		}
		for _, m := range msgs {
			memory.Add(m)
		}
	}
	h := newHandle(key, c.model, memory, c.now())
	c.logger.Info("generator created", "key", key.String(), "handle", h.ID(), "history", memory.Len())
	return h
}

func (c *Cache) flushEvictions() {
	c.mu.Lock()
	pending := c.evicted
	c.evicted = nil
	c.mu.Unlock()

	for _, ev := range pending {
		c.logger.Info("generator evicted", "key", ev.key.String(), "cause", string(ev.cause))
		c.emit("evict_" + string(ev.cause))
		if c.onEvict != nil {
			c.onEvict(ev.key, ev.cause)
		}
	}
}

func (c *Cache) emit(event string) {
	if c.onEvent != nil {
		c.onEvent(event)
	}
}

// Len returns the number of cached handles, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.cause = CausePurge
	c.entries.Purge()
	c.cause = CauseSize
	c.mu.Unlock()
	c.flushEvictions()
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	now := c.now()
	removed := 0
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if cause, expired := c.expired(e, now); expired {
			c.removeLocked(key, cause)
			removed++
		}
	}
	c.mu.Unlock()
	c.flushEvictions()
	return removed
}

// StartJanitor sweeps expired entries until ctx is done.
func (c *Cache) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("janitor swept generators", "removed", n)
				}
			}
		}
	}()
}
