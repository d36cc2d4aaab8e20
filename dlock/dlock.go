// Package dlock 提供基于 Redis 或 Etcd 的分布式锁。
//
// synchronized 策略通过 NewDistributedMutex 把 Locker 包装为跨进程的同步根，
// 也可以直接使用：
//
//	locker, err := dlock.NewRedis(redisClient, &dlock.Config{
//	    Prefix:     "orders:lock:",
//	    DefaultTTL: 30 * time.Second,
//	}, dlock.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := locker.Lock(ctx, "order:1001"); err != nil {
//	    return err
//	}
//	defer locker.Unlock(ctx, "order:1001")
//
// Redis 实现使用 SET NX 加随机 token，释放时通过 Lua 脚本比对 token，
// 持有期间由 watchdog 按 TTL/3 的间隔续期；Etcd 实现使用 concurrency.Mutex，
// 由 Session KeepAlive 续期。
package dlock

import (
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/ceyewan/aspect/xerrors"
)

// NewRedis 创建 Redis 分布式锁，Locker 不拥有 client 的生命周期
func NewRedis(client redis.UniversalClient, cfg *Config, opts ...Option) (Locker, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	o := applyOptions(opts)

	return &redisLocker{
		client:  client,
		cfg:     &c,
		logger:  o.logger,
		metrics: newLockMetrics(o, BackendRedis),
		locks:   make(map[string]*redisLockEntry),
	}, nil
}

// NewEtcd 创建 Etcd 分布式锁，Close 会关闭内部的 Session，但不会关闭 client
func NewEtcd(client *clientv3.Client, cfg *Config, opts ...Option) (Locker, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	o := applyOptions(opts)

	// 默认 Session 服务于使用 DefaultTTL 的锁
	session, err := concurrency.NewSession(client, concurrency.WithTTL(ttlSeconds(c.DefaultTTL)))
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to create etcd session")
	}

	return &etcdLocker{
		client:  client,
		session: session,
		cfg:     &c,
		logger:  o.logger,
		metrics: newLockMetrics(o, BackendEtcd),
		locks:   make(map[string]*etcdLockEntry),
	}, nil
}
