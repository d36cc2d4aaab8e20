package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/xerrors"
)

// releaseScript 只有 token 匹配时才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// renewScript 只有 token 匹配时才续期
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

type redisLocker struct {
	client  redis.UniversalClient
	cfg     *Config
	logger  clog.Logger
	metrics *lockMetrics

	mu    sync.Mutex
	locks map[string]*redisLockEntry
}

type redisLockEntry struct {
	key        string
	token      string
	expiration time.Duration
	acquired   time.Time
	renewStop  chan struct{}
	renewDone  chan struct{}
}

func (l *redisLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	for {
		ok, err := l.TryLock(ctx, key, opts...)
		if err != nil || ok {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	entry, err := l.acquire(ctx, key, opts...)
	if err != nil {
		return false, err
	}
	l.metrics.onAcquire(ctx, entry != nil)
	return entry != nil, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		l.mu.Unlock()
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.locks, key)
	l.mu.Unlock()

	// 停止续约
	close(entry.renewStop)
	<-entry.renewDone

	n, err := releaseScript.Run(ctx, l.client, []string{l.cfg.key(key)}, entry.token).Int64()
	if err != nil {
		return xerrors.Wrap(err, "failed to release lock")
	}
	if n == 0 {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}

	l.metrics.onRelease(ctx, entry.acquired)
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

func (l *redisLocker) acquire(ctx context.Context, key string, opts ...LockOption) (*redisLockEntry, error) {
	o := applyLockOptions(l.cfg, opts)

	// 先检查本地是否已持有锁
	l.mu.Lock()
	_, exists := l.locks[key]
	l.mu.Unlock()
	if exists {
		return nil, xerrors.Wrapf(ErrLockAlreadyHeld, "key: %s", key)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := l.cfg.key(key)

	ok, err := l.client.SetNX(ctx, redisKey, token, o.TTL).Result()
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to acquire lock")
	}
	if !ok {
		return nil, nil
	}

	// 获取 Redis 锁成功后，再次检查本地状态
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		_, _ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Result()
		return nil, xerrors.Wrapf(ErrLockAlreadyHeld, "key: %s", key)
	}
	entry := &redisLockEntry{
		key:        key,
		token:      token,
		expiration: o.TTL,
		acquired:   time.Now(),
		renewStop:  make(chan struct{}),
		renewDone:  make(chan struct{}),
	}
	l.locks[key] = entry
	l.mu.Unlock()

	go l.watchdog(entry, redisKey)

	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key), clog.Duration("ttl", o.TTL))
	return entry, nil
}

// watchdog 每隔 TTL/3 续期一次，直到 Unlock 或失去所有权
func (l *redisLocker) watchdog(entry *redisLockEntry, redisKey string) {
	defer close(entry.renewDone)

	interval := entry.expiration / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-entry.renewStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			n, err := renewScript.Run(ctx, l.client, []string{redisKey}, entry.token, entry.expiration.Milliseconds()).Int64()
			cancel()

			if err != nil {
				l.logger.Error("watchdog renew failed", clog.String("key", entry.key), clog.Error(err))
				return
			}
			if n == 0 {
				l.logger.Warn("watchdog lost ownership", clog.String("key", entry.key))
				return
			}
		}
	}
}

// Close Redis Locker 不拥有底层连接，因此是 no-op
func (l *redisLocker) Close() error {
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "failed to generate random token")
	}
	return hex.EncodeToString(b), nil
}
