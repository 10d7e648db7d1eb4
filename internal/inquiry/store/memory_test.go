package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/inquiry"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/testutil"
)

func seed(t *testing.T, s inquiry.Store) []inquiry.Inquiry {
	t.Helper()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	statuses := []inquiry.Status{inquiry.StatusNew, inquiry.StatusClosed, inquiry.StatusNew, inquiry.StatusContacted, inquiry.StatusNew}
	out := make([]inquiry.Inquiry, 0, len(statuses))
	for i, st := range statuses {
		inq := inquiry.Inquiry{
			ID:        uuid.New(),
			Name:      "Buyer",
			Email:     "buyer@example.com",
			Message:   "Looking for a box truck",
			Status:    st,
			SourceIP:  "192.0.2.0",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, s.Create(context.Background(), inq))
		out = append(out, inq)
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seeded := seed(t, s)

	t.Run("lists newest first", func(t *testing.T) {
		page, err := s.List(ctx, inquiry.Filter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, seeded[4].ID, page.Items[0].ID)
		assert.Equal(t, seeded[3].ID, page.Items[1].ID)
	})

	t.Run("filters by status and pages", func(t *testing.T) {
		page, err := s.List(ctx, inquiry.Filter{Status: inquiry.StatusNew, Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, seeded[0].ID, page.Items[0].ID)
	})

	t.Run("offset past the end is an empty page", func(t *testing.T) {
		page, err := s.List(ctx, inquiry.Filter{Limit: 10, Offset: 50})
		require.NoError(t, err)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
	})

	t.Run("get", func(t *testing.T) {
		got, err := s.Get(ctx, seeded[1].ID)
		require.NoError(t, err)
		assert.Equal(t, inquiry.StatusClosed, got.Status)

		_, err = s.Get(ctx, uuid.New())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := s.Create(ctx, seeded[0])
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	shared := uuid.New()

	res := testutil.RunConcurrent(50, func(idx int) error {
		id := uuid.New()
		if idx%5 == 0 {
			id = shared
		}
		return s.Create(ctx, inquiry.Inquiry{ID: id, Name: "Buyer", Status: inquiry.StatusNew, CreatedAt: time.Now()})
	})

	assert.Equal(t, int32(41), res.Successes)
	assert.Equal(t, int32(9), res.Conflicts)
	assert.Zero(t, res.Errors)

	page, err := s.List(ctx, inquiry.Filter{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 41, page.Total)
}
