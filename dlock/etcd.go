package dlock

import (
	"context"
	"errors"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/xerrors"
)

type etcdLocker struct {
	client  *clientv3.Client
	session *concurrency.Session
	cfg     *Config
	logger  clog.Logger
	metrics *lockMetrics

	mu    sync.Mutex
	locks map[string]*etcdLockEntry
}

type etcdLockEntry struct {
	mutex    *concurrency.Mutex
	session  *concurrency.Session
	owned    bool // session 为该锁单独创建
	acquired time.Time
}

func (l *etcdLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	err := l.lock(ctx, key, false, opts...)
	l.metrics.onAcquire(ctx, err == nil)
	return err
}

func (l *etcdLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	err := l.lock(ctx, key, true, opts...)
	l.metrics.onAcquire(ctx, err == nil)
	if errors.Is(err, concurrency.ErrLocked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *etcdLocker) lock(ctx context.Context, key string, try bool, opts ...LockOption) error {
	// 防止同一 locker 重复获取同一把锁
	l.mu.Lock()
	_, exists := l.locks[key]
	l.mu.Unlock()
	if exists {
		return xerrors.Wrapf(ErrLockAlreadyHeld, "key: %s", key)
	}

	o := applyLockOptions(l.cfg, opts)

	// TTL 与默认值不同时为该锁单独创建 session
	session, owned := l.session, false
	if o.TTL != l.cfg.DefaultTTL {
		s, err := concurrency.NewSession(l.client, concurrency.WithTTL(ttlSeconds(o.TTL)))
		if err != nil {
			return xerrors.Wrap(err, "failed to create etcd session")
		}
		session, owned = s, true
	}

	mutex := concurrency.NewMutex(session, l.cfg.key(key))
	var err error
	if try {
		err = mutex.TryLock(ctx)
	} else {
		err = mutex.Lock(ctx)
	}
	if err != nil {
		if owned {
			_ = session.Close()
		}
		if errors.Is(err, concurrency.ErrLocked) {
			return err
		}
		return xerrors.Wrap(err, "failed to lock")
	}

	l.mu.Lock()
	l.locks[key] = &etcdLockEntry{mutex: mutex, session: session, owned: owned, acquired: time.Now()}
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key), clog.Duration("ttl", o.TTL))
	return nil
}

func (l *etcdLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		l.mu.Unlock()
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.locks, key)
	l.mu.Unlock()

	if err := entry.mutex.Unlock(ctx); err != nil {
		return xerrors.Wrap(err, "failed to unlock")
	}
	if entry.owned {
		_ = entry.session.Close()
	}

	l.metrics.onRelease(ctx, entry.acquired)
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

// Close 关闭 Etcd Locker：独立 session 与默认 session 的租约被撤销，仍持有的锁随之释放
func (l *etcdLocker) Close() error {
	l.mu.Lock()
	entries := l.locks
	l.locks = make(map[string]*etcdLockEntry)
	l.mu.Unlock()

	var errs xerrors.Collector
	for key, entry := range entries {
		if entry.owned {
			errs.Collect(xerrors.Wrapf(entry.session.Close(), "close session of %s", key))
		}
		l.metrics.onRelease(context.Background(), entry.acquired)
	}
	errs.Collect(l.session.Close())
	return errs.Err()
}
