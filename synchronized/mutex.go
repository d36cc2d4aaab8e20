package synchronized

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ceyewan/aspect/dlock"
	"github.com/ceyewan/aspect/xerrors"
)

// Mutex 同步根
type Mutex interface {
	// TryLock 在 timeout 内尝试加锁：0 表示只尝试一次，负数表示一直等待
	// 超时返回 false, nil；ctx 被取消或后端出错时返回错误
	TryLock(ctx context.Context, timeout time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

// SyncRootProvider 调用目标可实现的能力，返回用于同步的锁对象
type SyncRootProvider interface {
	SyncRoot() Mutex
}

// localMutex 基于权重为 1 的信号量，支持超时与取消
type localMutex struct {
	sem *semaphore.Weighted
}

// NewMutex 创建进程内的互斥锁
func NewMutex() Mutex {
	return &localMutex{sem: semaphore.NewWeighted(1)}
}

func (m *localMutex) TryLock(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout == 0 {
		return m.sem.TryAcquire(1), nil
	}
	return waitFor(ctx, timeout, func(ctx context.Context) error {
		return m.sem.Acquire(ctx, 1)
	})
}

func (m *localMutex) Unlock(context.Context) error {
	m.sem.Release(1)
	return nil
}

// distributedMutex 先在进程内排队，再竞争分布式锁
type distributedMutex struct {
	local  *localMutex
	locker dlock.Locker
	key    string
}

// NewDistributedMutex 基于 dlock.Locker 创建跨进程的互斥锁
//
// 同一进程内的竞争者先在本地排队，因此同一个 Locker 可以被多个 goroutine 共享。
func NewDistributedMutex(locker dlock.Locker, key string) Mutex {
	return &distributedMutex{
		local:  &localMutex{sem: semaphore.NewWeighted(1)},
		locker: locker,
		key:    key,
	}
}

func (m *distributedMutex) TryLock(ctx context.Context, timeout time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.local.TryLock(ctx, timeout)
	if !ok || err != nil {
		return ok, err
	}

	if timeout > 0 {
		timeout -= time.Since(start)
		if timeout <= 0 {
			timeout = 0
		}
	}

	if timeout == 0 {
		ok, err = m.locker.TryLock(ctx, m.key)
	} else {
		ok, err = waitFor(ctx, timeout, func(ctx context.Context) error {
			return m.locker.Lock(ctx, m.key)
		})
	}
	if !ok || err != nil {
		_ = m.local.Unlock(ctx)
	}
	return ok, err
}

func (m *distributedMutex) Unlock(ctx context.Context) error {
	defer m.local.Unlock(ctx)
	return m.locker.Unlock(ctx, m.key)
}

// waitFor 以 timeout 为上限执行阻塞加锁；自身超时返回 false, nil
func waitFor(ctx context.Context, timeout time.Duration, acquire func(context.Context) error) (bool, error) {
	if timeout < 0 {
		if err := acquire(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := acquire(waitCtx)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, xerrors.Wrap(err, "acquire lock")
	}
}
