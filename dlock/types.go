package dlock

import (
	"context"
	"time"
)

// Config 组件静态配置
type Config struct {
	// Prefix 锁 Key 的全局前缀，例如 "dlock:"
	Prefix string `mapstructure:"prefix"`

	// DefaultTTL 默认锁超时时间（默认：10s）
	// Redis 会启动 Watchdog 自动续期；Etcd 使用 Session KeepAlive 自动续期。
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// RetryInterval 加锁重试间隔，仅 Lock 模式有效（默认：100ms）
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func (c *Config) setDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
}

func (c *Config) key(key string) string {
	return c.Prefix + key
}

// Locker 定义了分布式锁的核心行为
type Locker interface {
	// Lock 阻塞式加锁
	// 如果上下文取消，返回 context.Canceled 或 context.DeadlineExceeded
	Lock(ctx context.Context, key string, opts ...LockOption) error

	// TryLock 非阻塞式尝试加锁
	// 成功获取锁返回 true, nil；锁已被占用返回 false, nil；发生错误返回 false, err
	TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error)

	// Unlock 释放锁，只有锁的持有者才能成功释放
	Unlock(ctx context.Context, key string) error

	// Close 关闭 Locker，释放底层资源
	// 对于 Etcd 会关闭 session，对于 Redis 是 no-op
	Close() error
}

func ttlSeconds(d time.Duration) int {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return s
}
