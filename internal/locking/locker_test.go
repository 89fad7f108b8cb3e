package locking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializes(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Acquire(ctx, "t-1", time.Minute)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := locker.Acquire(ctx, "t-1", time.Minute)
		assert.NoError(t, err)
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		_ = second(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	require.NoError(t, unlock(ctx))

	<-done
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestLocalLockerAcquireTimesOut(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Acquire(ctx, "t-1", time.Minute)
	require.NoError(t, err)
	defer unlock(ctx) //nolint:errcheck

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "t-1", time.Minute)
	require.Error(t, err)
}

func TestLocalLockerIndependentTickets(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "t-1", time.Minute)
	require.NoError(t, err)
	defer first(ctx) //nolint:errcheck

	second, err := locker.Acquire(ctx, "t-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, second(ctx))
}

func TestLocalLockerUnlockIdempotent(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Acquire(ctx, "t-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))

	again, err := locker.Acquire(ctx, "t-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
