package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry struct {
	value   string
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.After(now)
}

// Local is a bounded in-process store of serialized values. Every entry
// carries its own expiry; once the store is full the least recently used
// entry makes room for a new one. Expired entries are dropped when read and
// by a background sweep.
type Local struct {
	ctx       context.Context
	cancel    context.CancelFunc
	mutex     sync.Mutex
	lru       *simplelru.LRU[string, entry]
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
	evictions int
}

// NewLocal returns a local store sized by WithCapacity. The sweeper stops
// when parent is cancelled or Close is called.
func NewLocal(parent context.Context, opts ...Option) *Local {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &Local{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
	}
	lru, err := simplelru.NewLRU[string, entry](cfg.capacity, nil)
	if err != nil {
		// applyOptions guarantees a positive capacity
		panic(err)
	}
	c.lru = lru
	c.waitGroup.Add(1)
	go c.run()
	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Local) Get(key string) (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.lru.Get(key)
	if !ok {
		return "", false
	}
	if e.expired(c.cfg.now()) {
		c.lru.Remove(key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key for ttl, replacing any previous entry. A ttl
// <= 0 uses the configured default. When the store is full, expired entries
// are dropped before the least recently used live one is evicted.
func (c *Local) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.defaultExpires
	}
	now := c.cfg.now()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.lru.Len() >= c.cfg.capacity && !c.lru.Contains(key) {
		c.removeExpired(now)
	}
	if c.lru.Add(key, entry{value: value, expires: now.Add(ttl)}) {
		c.evictions++
	}
}

// Delete removes key and reports whether it was present.
func (c *Local) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lru.Remove(key)
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Local) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lru.Len()
}

// Evictions returns how many entries were pushed out by the capacity bound.
func (c *Local) Evictions() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.evictions
}

// Close stops the background sweeper. The store remains usable.
func (c *Local) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *Local) sweep() {
	now := c.cfg.now()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.removeExpired(now)
}

// removeExpired drops every expired entry. The caller holds the mutex.
func (c *Local) removeExpired(now time.Time) {
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && e.expired(now) {
			c.lru.Remove(key)
		}
	}
}

func (c *Local) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
