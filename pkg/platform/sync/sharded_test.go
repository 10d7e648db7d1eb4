package sync

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_SameKeySerializes(t *testing.T) {
	m := NewShardedMutex()
	counter := 0
	var wg sync.WaitGroup

	for range 100 {
		wg.Go(func() {
			m.Lock("203.0.113.9")
			defer m.Unlock("203.0.113.9")
			counter++
		})
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestShardedMutex_EmptyKey(t *testing.T) {
	m := NewShardedMutex()
	m.Lock("")
	m.Unlock("")
}

func TestShardFor_Distribution(t *testing.T) {
	shards := make(map[int]bool)
	for i := range 200 {
		shards[shardFor(fmt.Sprintf("10.0.%d.%d", i/256, i%256))] = true
	}
	assert.Greater(t, len(shards), shardCount/2)
}

func TestShardedMap(t *testing.T) {
	t.Run("update inserts, mutates and deletes", func(t *testing.T) {
		m := NewShardedMap[int]()

		got := m.Update("a", func(v int, ok bool) (int, bool) {
			assert.False(t, ok)
			return v + 1, true
		})
		assert.Equal(t, 1, got)

		m.Update("a", func(v int, ok bool) (int, bool) {
			assert.True(t, ok)
			return v + 1, true
		})
		v, ok := m.Load("a")
		assert.True(t, ok)
		assert.Equal(t, 2, v)

		m.Update("a", func(v int, _ bool) (int, bool) { return v, false })
		_, ok = m.Load("a")
		assert.False(t, ok)
	})

	t.Run("concurrent updates on one key are atomic", func(t *testing.T) {
		m := NewShardedMap[int]()
		var wg sync.WaitGroup
		for range 500 {
			wg.Go(func() {
				m.Update("hot", func(v int, _ bool) (int, bool) { return v + 1, true })
			})
		}
		wg.Wait()

		v, _ := m.Load("hot")
		assert.Equal(t, 500, v)
	})

	t.Run("sweep removes matching entries", func(t *testing.T) {
		m := NewShardedMap[int]()
		for i := range 10 {
			key := fmt.Sprintf("k%d", i)
			m.Update(key, func(int, bool) (int, bool) { return i, true })
		}
		removed := m.Sweep(func(_ string, v int) bool { return v%2 == 0 })

		assert.Equal(t, 5, removed)
		assert.Equal(t, 5, m.Len())
		m.Delete("k1")
		assert.Equal(t, 4, m.Len())
	})
}
