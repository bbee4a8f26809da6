package executor

import (
	"container/list"
	"sync"

	"github.com/isdmx/scriptbox/engine"
)

// unitCache keeps the most recently used compiled units by source text.
// Lookups take the read lock; hits refresh recency under the write lock.
type unitCache struct {
	mu    sync.RWMutex
	size  int
	items map[string]*list.Element
	order *list.List
}

type cacheEntry struct {
	src  string
	unit engine.Unit
}

// newUnitCache returns a cache holding at most size units. A size of zero
// disables caching.
func newUnitCache(size int) *unitCache {
	return &unitCache{
		size:  size,
		items: make(map[string]*list.Element, size),
		order: list.New(),
	}
}

func (c *unitCache) get(src string) (engine.Unit, bool) {
	if c.size == 0 {
		return nil, false
	}
	c.mu.RLock()
	el, ok := c.items[src]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el.Prev() != nil && c.items[src] == el {
		c.order.MoveToFront(el)
	}
	return el.Value.(*cacheEntry).unit, true
}

// add stores unit unless another caller already cached src, and returns the
// unit that is cached.
func (c *unitCache) add(src string, unit engine.Unit) engine.Unit {
	if c.size == 0 {
		return unit
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[src]; ok {
		return el.Value.(*cacheEntry).unit
	}
	c.items[src] = c.order.PushFront(&cacheEntry{src: src, unit: unit})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).src)
	}
	return unit
}

func (c *unitCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
