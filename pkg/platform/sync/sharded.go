package sync

import (
	"sync"
)

const shardCount = 32

// ShardedMutex serializes work per key without a single global lock.
// Keys hash onto a fixed set of shards; distinct keys may share a shard.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// NewShardedMutex creates a new ShardedMutex.
func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the lock for the given key's shard.
func (m *ShardedMutex) Lock(key string) {
	m.shards[shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *ShardedMutex) Unlock(key string) {
	m.shards[shardFor(key)].Unlock()
}

// ShardedMap is a string-keyed map whose per-key read-modify-write is atomic.
type ShardedMap[V any] struct {
	shards [shardCount]mapShard[V]
}

type mapShard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// NewShardedMap creates an empty ShardedMap.
func NewShardedMap[V any]() *ShardedMap[V] {
	s := &ShardedMap[V]{}
	for i := range s.shards {
		s.shards[i].m = make(map[string]V)
	}
	return s
}

// Update runs fn with the current value (ok=false when absent) under the key's
// shard lock. fn returns the new value and whether to keep it; keep=false deletes.
// The result of fn is returned to the caller.
func (s *ShardedMap[V]) Update(key string, fn func(v V, ok bool) (next V, keep bool)) V {
	sh := &s.shards[shardFor(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.m[key]
	next, keep := fn(cur, ok)
	if keep {
		sh.m[key] = next
	} else {
		delete(sh.m, key)
	}
	return next
}

// Load returns the value stored for key.
func (s *ShardedMap[V]) Load(key string) (V, bool) {
	sh := &s.shards[shardFor(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	return v, ok
}

// Delete removes key.
func (s *ShardedMap[V]) Delete(key string) {
	sh := &s.shards[shardFor(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.m, key)
}

// Sweep visits every entry shard by shard and removes those for which drop
// returns true. Returns the number of removed entries.
func (s *ShardedMap[V]) Sweep(drop func(key string, v V) bool) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			if drop(k, v) {
				delete(sh.m, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of entries across all shards.
func (s *ShardedMap[V]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

// shardFor returns the shard index for the given key. Empty keys use shard 0.
func shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % shardCount)
}

// hashString is a 31-multiplier string hash; good enough spread for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
