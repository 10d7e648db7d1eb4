package memory

import (
	"context"
	"slices"
	"time"

	"gatekeeper/internal/ratelimit/store"
	gsync "gatekeeper/pkg/platform/sync"
)

// Store implements store.WindowStore with process-local timestamp logs.
// State is lost on restart and not shared between instances.
type Store struct {
	logs *gsync.ShardedMap[*timestampLog]
}

type timestampLog struct {
	timestamps []time.Time
	window     time.Duration
}

// prune drops timestamps at or before now-window. The log is kept sorted.
func (l *timestampLog) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i, _ := slices.BinarySearchFunc(l.timestamps, cutoff, func(t, target time.Time) int {
		if t.After(target) {
			return 1
		}
		return -1
	})
	l.timestamps = l.timestamps[i:]
}

// insert places t in order. Requests fix their clock before taking the
// shard lock, so they can arrive here out of order.
func (l *timestampLog) insert(t time.Time) {
	i, _ := slices.BinarySearchFunc(l.timestamps, t, func(e, target time.Time) int {
		if e.After(target) {
			return 1
		}
		return -1
	})
	l.timestamps = slices.Insert(l.timestamps, i, t)
}

func (l *timestampLog) oldest() time.Time {
	if len(l.timestamps) == 0 {
		return time.Time{}
	}
	return l.timestamps[0]
}

// New creates an empty in-memory window store.
func New() *Store {
	return &Store{logs: gsync.NewShardedMap[*timestampLog]()}
}

// Admit prunes, compares and appends under the key's shard lock.
func (s *Store) Admit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (store.Admission, error) {
	var res store.Admission
	s.logs.Update(key, func(l *timestampLog, ok bool) (*timestampLog, bool) {
		if !ok {
			l = &timestampLog{}
		}
		l.window = window
		l.prune(now)

		if len(l.timestamps) >= limit {
			res = store.Admission{Allowed: false, Count: len(l.timestamps), Oldest: l.oldest()}
			return l, len(l.timestamps) > 0
		}

		l.insert(now)
		res = store.Admission{Allowed: true, Count: len(l.timestamps), Oldest: l.oldest()}
		return l, true
	})
	return res, nil
}

// Reset clears the log for key.
func (s *Store) Reset(_ context.Context, key string) error {
	s.logs.Delete(key)
	return nil
}

// Sweep removes logs whose every timestamp has left its window.
// Returns the number of removed keys.
func (s *Store) Sweep(now time.Time) int {
	return s.logs.Sweep(func(_ string, l *timestampLog) bool {
		l.prune(now)
		return len(l.timestamps) == 0
	})
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	return s.logs.Len()
}

var _ store.WindowStore = (*Store)(nil)
