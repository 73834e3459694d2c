// Package nodecache holds the in-memory directory of monitored nodes built
// from the node-inventory stream. It is read on every alarm mapping and
// written only by the node-stream consumer. Reads take a shared lock, so
// readers run concurrently with each other; a read waits while a write
// holds the lock.
package nodecache

import (
	"sync"

	"github.com/opennms-forks/alertbridge/internal/model"
)

// Cache is a concurrent node directory keyed by node identity
// (model.Node.Key()), with a secondary index from numeric id to the
// current primary key. A single mutex guards both maps so that a reader
// never observes the secondary index pointing at a key the primary map
// hasn't been updated for yet (I1).
type Cache struct {
	mu      sync.RWMutex
	byKey   map[string]*model.Node
	idIndex map[int64]string
}

// New creates an empty node cache.
func New() *Cache {
	return &Cache{
		byKey:   make(map[string]*model.Node),
		idIndex: make(map[int64]string),
	}
}

// Put inserts or replaces the node under its identity key. If the node's
// numeric id previously resolved to a different key, the node stored under
// that old key is dropped and the id is re-indexed to the new key, so
// byKey and idIndex never disagree.
func (c *Cache) Put(n *model.Node) {
	if n == nil {
		return
	}
	key := n.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if n.ID > 0 {
		if prevKey, ok := c.idIndex[n.ID]; ok && prevKey != key {
			delete(c.byKey, prevKey)
		}
		c.idIndex[n.ID] = key
	}
	c.byKey[key] = n
}

// Remove deletes the node stored under key, if any, along with its
// secondary-index entry.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.byKey[key]
	if !ok {
		return
	}
	delete(c.byKey, key)
	if n.ID > 0 {
		if cur, ok := c.idIndex[n.ID]; ok && cur == key {
			delete(c.idIndex, n.ID)
		}
	}
}

// RemoveByID deletes the node currently indexed under the given numeric id.
func (c *Cache) RemoveByID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.idIndex[id]
	if !ok {
		return
	}
	delete(c.idIndex, id)
	delete(c.byKey, key)
}

// GetByKey returns the node stored under key, or (nil, false) on a miss.
func (c *Cache) GetByKey(key string) (*model.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byKey[key]
	return n, ok
}

// GetByCriteria resolves a model.NodeCriteria to the node currently
// cached for it. Lookup is deterministic: when foreignSource and foreignId
// are both non-empty, only "foreignSource:foreignId" is probed (a miss
// there is a miss); otherwise a numeric id > 0 is probed via the secondary
// index; otherwise a miss. A hit on the secondary index returns
// whatever is currently stored under the corresponding primary key, which
// may differ from what was true when the id was first recorded.
func (c *Cache) GetByCriteria(crit model.NodeCriteria) (*model.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if crit.ForeignSource != "" && crit.ForeignID != "" {
		if n, ok := c.byKey[crit.ForeignSource+":"+crit.ForeignID]; ok {
			return n, true
		}
		return nil, false
	}
	if crit.ID > 0 {
		key, ok := c.idIndex[crit.ID]
		if !ok {
			return nil, false
		}
		n, ok := c.byKey[key]
		return n, ok
	}
	return nil, false
}

// Snapshot returns a copy of all currently cached nodes.
func (c *Cache) Snapshot() []*model.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.Node, 0, len(c.byKey))
	for _, n := range c.byKey {
		out = append(out, n)
	}
	return out
}

// Size returns the number of distinct keys currently cached.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey = make(map[string]*model.Node)
	c.idIndex = make(map[int64]string)
}
