package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/domain"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   9,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	require.NoError(t, client.Del(ctx, dueKey, payloadKey).Err())
	t.Cleanup(func() {
		_ = client.Del(context.Background(), dueKey, payloadKey).Err()
		_ = client.Close()
	})
	return client
}

func testTask(ticketID string, due time.Time) domain.FollowUpTask {
	return domain.FollowUpTask{
		TicketID:     ticketID,
		ScheduledAt:  time.Now(),
		DueAt:        due,
		ScheduledFor: domain.DecisionAutoResolve,
		Critical:     false,
	}
}

func TestScheduleAndCancel(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client, time.Second, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, testTask("t-1", time.Now().Add(time.Hour))))
	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, s.Cancel(ctx, "t-1"))
	count, err = s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestScheduleReplacesPendingTask(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client, time.Second, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, testTask("t-1", time.Now().Add(time.Hour))))
	require.NoError(t, s.Schedule(ctx, testTask("t-1", time.Now().Add(2*time.Hour))))

	// one pending task per ticket
	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDispatchDueFiresOnlyDueTasks(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client, time.Second, nil, zap.NewNop())
	ctx := context.Background()

	var (
		mu    sync.Mutex
		fired []string
	)
	s.SetHandler(func(ctx context.Context, task domain.FollowUpTask) error {
		mu.Lock()
		fired = append(fired, task.TicketID)
		mu.Unlock()
		return nil
	})

	require.NoError(t, s.Schedule(ctx, testTask("due-now", time.Now().Add(-time.Second))))
	require.NoError(t, s.Schedule(ctx, testTask("due-later", time.Now().Add(time.Hour))))

	require.NoError(t, s.dispatchDue(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"due-now"}, fired)

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDispatchDueRequeuesOnHandlerError(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client, time.Second, nil, zap.NewNop())
	ctx := context.Background()

	calls := 0
	s.SetHandler(func(ctx context.Context, task domain.FollowUpTask) error {
		calls++
		return assert.AnError
	})

	require.NoError(t, s.Schedule(ctx, testTask("t-1", time.Now().Add(-time.Second))))
	require.NoError(t, s.dispatchDue(ctx))
	assert.Equal(t, 1, calls)

	// requeued with a bumped attempt counter and a short delay
	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	raw, err := client.HGet(ctx, payloadKey, "t-1").Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"attempt":1`)
}
