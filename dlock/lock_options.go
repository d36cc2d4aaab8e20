package dlock

import "time"

// lockOptions Lock 操作的选项配置
type lockOptions struct {
	TTL time.Duration
}

// LockOption Lock 操作的选项函数
type LockOption func(*lockOptions)

// WithTTL 设置锁的 TTL，覆盖配置中的 DefaultTTL
//
//	locker.Lock(ctx, "key", dlock.WithTTL(10*time.Second))
func WithTTL(d time.Duration) LockOption {
	return func(o *lockOptions) {
		o.TTL = d
	}
}

func applyLockOptions(cfg *Config, opts []LockOption) *lockOptions {
	o := &lockOptions{TTL: cfg.DefaultTTL}
	for _, opt := range opts {
		opt(o)
	}
	if o.TTL <= 0 {
		o.TTL = cfg.DefaultTTL
	}
	return o
}
