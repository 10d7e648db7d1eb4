package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"gatekeeper/internal/inquiry"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Memory keeps inquiries in process memory. It backs development runs
// without DATABASE_URL.
type Memory struct {
	mu    sync.RWMutex
	items map[uuid.UUID]inquiry.Inquiry
}

func NewMemory() *Memory {
	return &Memory{items: make(map[uuid.UUID]inquiry.Inquiry)}
}

func (s *Memory) Create(_ context.Context, inq inquiry.Inquiry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[inq.ID]; ok {
		return dErrors.New(dErrors.CodeConflict, "inquiry already exists")
	}
	s.items[inq.ID] = inq
	return nil
}

func (s *Memory) Get(_ context.Context, id uuid.UUID) (*inquiry.Inquiry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inq, ok := s.items[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "inquiry not found")
	}
	return &inq, nil
}

func (s *Memory) List(_ context.Context, f inquiry.Filter) (inquiry.Page, error) {
	s.mu.RLock()
	matched := make([]inquiry.Inquiry, 0, len(s.items))
	for _, inq := range s.items {
		if f.Status == "" || inq.Status == f.Status {
			matched = append(matched, inq)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b inquiry.Inquiry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	page := inquiry.Page{Total: len(matched), Items: []inquiry.Inquiry{}}
	if f.Offset < len(matched) {
		end := len(matched)
		if f.Limit > 0 {
			end = min(f.Offset+f.Limit, len(matched))
		}
		page.Items = matched[f.Offset:end]
	}
	return page, nil
}

var _ inquiry.Store = (*Memory)(nil)
