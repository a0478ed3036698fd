package queuestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/queuestore"
)

func newStore(t *testing.T) *queuestore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return queuestore.New(rdb)
}

func TestStore_TaskLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	id, err := s.NextTaskID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	task := domain.Task{
		ID: id, Action: domain.ActionCreateItinerary, Priority: domain.PriorityHigh,
		UserID: "u1", Status: domain.TaskQueued,
	}
	require.NoError(t, s.PutTask(ctx, task, time.Minute))

	got, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.TaskQueued, got.Status)

	require.NoError(t, s.UpdateTaskStatus(ctx, id, domain.TaskComplete, domain.RationaleNone, "itin-1", time.Minute))

	got, err = s.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.TaskComplete, got.Status)
	require.Equal(t, "itin-1", got.Result)
}

func TestStore_GetTask_NotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	_, err := s.GetTask(ctx, 999)
	require.ErrorIs(t, err, queuestore.ErrNotFound)
}

func TestStore_PopMinBlocking_StrictPriorityOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, domain.PriorityLow, 10, 100))
	require.NoError(t, s.Add(ctx, domain.PriorityEmergency, 20, 200))

	res, ok, err := s.PopMinBlocking(ctx, domain.Classes, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.PriorityEmergency, res.Class)
	require.Equal(t, int64(20), res.TaskID)
}

func TestStore_PopMinBlocking_WithinClassByScore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, domain.PriorityHigh, 1, 500))
	require.NoError(t, s.Add(ctx, domain.PriorityHigh, 2, 100))

	res, ok, err := s.PopMinBlocking(ctx, domain.Classes, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), res.TaskID)
}

func TestStore_QueueDepths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, domain.PriorityHigh, 1, 100))
	require.NoError(t, s.Add(ctx, domain.PriorityHigh, 2, 200))
	require.NoError(t, s.Add(ctx, domain.PriorityLow, 3, 300))

	depths, err := s.QueueDepths(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), depths[domain.PriorityHigh])
	require.Equal(t, int64(1), depths[domain.PriorityLow])
	require.Equal(t, int64(0), depths[domain.PriorityEmergency])
	require.Equal(t, int64(0), depths[domain.PriorityMedium])
}

func TestStore_Remove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, domain.PriorityMedium, 7, 42))
	require.NoError(t, s.Remove(ctx, domain.PriorityMedium, 7))

	res, ok, err := s.PopMinBlocking(ctx, domain.Classes, 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, res)
}
