package synchronized

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aspect/dlock"
	"github.com/ceyewan/aspect/testkit"
)

func newRedisLocker(t *testing.T, client redis.UniversalClient) dlock.Locker {
	t.Helper()
	locker, err := dlock.NewRedis(client, &dlock.Config{
		Prefix:        "synchronized:test:",
		DefaultTTL:    3 * time.Second,
		RetryInterval: 10 * time.Millisecond,
	}, dlock.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })
	return locker
}

func TestDistributedMutex_SharedLocker(t *testing.T) {
	mu := NewDistributedMutex(newRedisLocker(t, testkit.NewRedisClient(t)), "reserve:"+testkit.NewID())
	ctx := context.Background()

	var active, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := mu.TryLock(ctx, 5*time.Second)
			if !assert.NoError(t, err) || !assert.True(t, ok) {
				return
			}
			if active.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			assert.NoError(t, mu.Unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestDistributedMutex_Timeout(t *testing.T) {
	client := testkit.NewRedisClient(t)
	key := "reserve:" + testkit.NewID()
	ctx := context.Background()

	// 两个 Locker 模拟两个进程
	other := NewDistributedMutex(newRedisLocker(t, client), key)
	ok, err := other.TryLock(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	mu := NewDistributedMutex(newRedisLocker(t, client), key)
	ok, err = mu.TryLock(ctx, 0)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = mu.TryLock(ctx, 50*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, other.Unlock(ctx))
	ok, err = mu.TryLock(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mu.Unlock(ctx))
}
