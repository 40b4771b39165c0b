// Package registry provides a sharded concurrent lookup table mapping job
// names to live values. Sharding keeps insert/lookup/remove linearizable per
// key without funnelling every caller through one lock.
package registry

import (
	"hash/fnv"
	"sync"

	"github.com/depotfs/depot/internal/model"
)

const defaultShards = 32

type shard[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// Table is a concurrent name-to-value table. The zero value is not usable;
// construct with New. A Table is created at startup and handed explicitly to
// the components that need it.
type Table[V any] struct {
	shards []*shard[V]
}

// New creates a table with the default shard count.
func New[V any]() *Table[V] {
	shards := make([]*shard[V], defaultShards)
	for i := range shards {
		shards[i] = &shard[V]{entries: make(map[string]V)}
	}
	return &Table[V]{shards: shards}
}

func (t *Table[V]) shardFor(name string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(name))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

// Register inserts name. It fails with model.ErrNameConflict if the name is
// already present.
func (t *Table[V]) Register(name string, v V) error {
	s := t.shardFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return model.ErrNameConflict
	}
	s.entries[name] = v
	return nil
}

// Lookup returns the value registered under name.
func (t *Table[V]) Lookup(name string) (V, bool) {
	s := t.shardFor(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[name]
	return v, ok
}

// Remove deletes name and reports whether it was present.
func (t *Table[V]) Remove(name string) bool {
	s := t.shardFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return false
	}
	delete(s.entries, name)
	return true
}

// Len returns the number of registered entries across all shards.
func (t *Table[V]) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
