// Package cache provides a small bounded in-memory cache with
// insertion-order eviction.
package cache

import (
	"container/list"
	"sync"
)

// Bounded is a capacity-limited string cache. When full, the
// oldest-inserted entry is evicted; lookups do not refresh an entry's
// position, so this is deliberately not an LRU.
type Bounded struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type entry struct {
	key   string
	value string
}

func NewBounded(capacity int) *Bounded {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bounded{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *Bounded) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return el.Value.(*entry).value, true
}

func (c *Bounded) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).key)
		}
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, value: value})
}

func (c *Bounded) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
