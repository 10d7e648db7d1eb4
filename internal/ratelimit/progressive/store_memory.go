package progressive

import (
	"context"
	"time"

	"gatekeeper/internal/ratelimit/models"
	gsync "gatekeeper/pkg/platform/sync"
)

// MemoryStore keeps escalation records in process memory.
type MemoryStore struct {
	states *gsync.ShardedMap[models.ProgressiveState]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: gsync.NewShardedMap[models.ProgressiveState]()}
}

func (s *MemoryStore) Load(_ context.Context, key string) (models.ProgressiveState, error) {
	st, _ := s.states.Load(key)
	return st, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, state models.ProgressiveState) error {
	s.states.Update(key, func(models.ProgressiveState, bool) (models.ProgressiveState, bool) {
		return state, !state.IsZero()
	})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.states.Delete(key)
	return nil
}

// Sweep drops records that are neither banned nor recent enough to escalate.
func (s *MemoryStore) Sweep(now time.Time, quiet time.Duration) int {
	return s.states.Sweep(func(_ string, st models.ProgressiveState) bool {
		return !st.Banned(now) && st.Quiet(now, quiet)
	})
}

// Len returns the number of tracked identities.
func (s *MemoryStore) Len() int {
	return s.states.Len()
}

var _ StateStore = (*MemoryStore)(nil)
