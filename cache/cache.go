// Package cache holds computed query results for a bounded time.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache stores values by key.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Expire(key string)
	// ExpirePrefix drops every key starting with prefix and returns how many.
	ExpirePrefix(prefix string) int
}

// Clock abstracts time for expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

type entry struct {
	value   any
	expires time.Time
}

// TTLCache is an in-memory Cache whose entries expire ttl after Set.
type TTLCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock Clock
	items map[string]entry
}

// New returns a TTLCache, or a Nop cache when ttl <= 0.
func New(ttl time.Duration, clock Clock) Cache {
	if ttl <= 0 {
		return Nop{}
	}
	return NewTTL(ttl, clock)
}

// NewTTL returns an empty TTLCache. A nil clock uses SystemClock.
func NewTTL(ttl time.Duration, clock Clock) *TTLCache {
	if clock == nil {
		clock = SystemClock
	}
	return &TTLCache{ttl: ttl, clock: clock, items: make(map[string]entry)}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

func (c *TTLCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.items[key] = entry{value: value, expires: now.Add(c.ttl)}

	// Drop expired entries.
	for k, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, k)
		}
	}
}

func (c *TTLCache) Expire(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTLCache) ExpirePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired ones included until swept.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(string) (any, bool)  { return nil, false }
func (Nop) Set(string, any)         {}
func (Nop) Expire(string)           {}
func (Nop) ExpirePrefix(string) int { return 0 }
