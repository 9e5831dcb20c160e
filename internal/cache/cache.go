// Package cache holds previously obtained answers keyed by request
// fingerprint. Entries expire after a fixed TTL and the table is bounded:
// inserting past capacity evicts the entry closest to expiry, which with a
// single TTL is also the oldest one.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     string
	createdAt time.Time
	expiresAt time.Time
}

type Options struct {
	Enabled  bool
	TTL      time.Duration
	MaxItems int
}

// Cache is safe for concurrent use. A disabled cache degrades to
// always-miss; none of the methods can fail.
type Cache struct {
	mu      sync.Mutex
	opts    Options
	order   *list.List // front = oldest, back = most recently used
	entries map[string]*list.Element
	now     func() time.Time
}

func New(opts Options) *Cache {
	if opts.MaxItems <= 0 {
		opts.MaxItems = 100
	}
	return &Cache{
		opts:    opts,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the cached answer for the fingerprint. An expired entry is
// removed on sight and reported as a miss. A hit refreshes recency.
func (c *Cache) Get(fingerprint string) (string, bool) {
	if !c.opts.Enabled {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		return "", false
	}

	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeLocked(el)
		return "", false
	}

	c.order.MoveToBack(el)
	return e.value, true
}

// Put inserts or overwrites the answer for the fingerprint. At capacity the
// oldest entry is evicted first so the item bound always holds.
func (c *Cache) Put(fingerprint, value string) {
	if !c.opts.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if el, ok := c.entries[fingerprint]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(c.opts.TTL)
		c.order.MoveToBack(el)
		return
	}

	for len(c.entries) >= c.opts.MaxItems {
		c.removeLocked(c.order.Front())
	}

	el := c.order.PushBack(&entry{
		key:       fingerprint,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(c.opts.TTL),
	})
	c.entries[fingerprint] = el
}

func (c *Cache) Remove(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		c.removeLocked(el)
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.key)
}
