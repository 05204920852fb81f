package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatusStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStatusStore(0)

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	require.NoError(t, s.Put(ctx, TaskState{ID: "a", Status: StatusPending}))
	require.NoError(t, s.Put(ctx, TaskState{ID: "a", Status: StatusRunning, Attempts: 1}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryStatusStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStatusStore(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, TaskState{ID: "a", Status: StatusSuccess}))

	now = now.Add(59 * time.Minute)
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
