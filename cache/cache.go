// Package cache provides a small bounded map that evicts the oldest inserted
// entry once capacity is reached. It backs the game-name cache of the Helix
// facade and the role-id cache of the Discord role resolver, both of which hold
// display data where staleness is harmless and keys repeat heavily.
package cache

import "sync"

// Bounded is a fixed-capacity key/value store with insertion-order eviction.
// Reads do not refresh an entry's position. It is safe for concurrent use.
type Bounded[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    []K
	items    map[K]V
}

// New returns a Bounded cache holding at most capacity entries (minimum 1).
func New[K comparable, V any](capacity int) *Bounded[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[K, V]{
		capacity: capacity,
		order:    make([]K, 0, capacity),
		items:    make(map[K]V, capacity),
	}
}

// Get returns the cached value for key.
func (c *Bounded[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

// Put stores value under key. Replacing an existing key keeps its original
// insertion position.
func (c *Bounded[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		c.items[key] = value
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
	c.order = append(c.order, key)
	c.items[key] = value
}

// Delete removes key if present.
func (c *Bounded[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of cached entries.
func (c *Bounded[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
