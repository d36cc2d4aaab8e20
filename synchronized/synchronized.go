// Package synchronized 提供互斥执行策略：调用目标实现 SyncRootProvider 时，
// 在 Timeout 内获取它提供的锁后才执行真实方法，执行结束后总会释放锁。
//
// 获取锁超时默认只记录日志并跳过本次调用（返回 nil），配置 FailOnTimeout 时返回
// ErrLockTimeout。调用目标没有提供锁时记录警告并直接执行。
//
//	type Inventory struct{ mu synchronized.Mutex }
//
//	func (i *Inventory) SyncRoot() synchronized.Mutex { return i.mu }
//
//	inv := &Inventory{mu: synchronized.NewMutex()}
//	// 跨进程互斥：
//	inv = &Inventory{mu: synchronized.NewDistributedMutex(locker, "inventory")}
package synchronized

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// Kind 互斥策略标签
const Kind intercept.Kind = "synchronized"

// ErrLockTimeout 在超时时间内没有获取到锁，真实方法没有被执行
var ErrLockTimeout = xerrors.New("synchronized: lock not acquired")

// Config 互斥策略配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// Timeout 等待锁的时间（默认：5s），0 表示只尝试一次，负数表示一直等待
	Timeout time.Duration `mapstructure:"timeout"`

	// FailOnTimeout 超时时返回 ErrLockTimeout 而不是静默跳过
	FailOnTimeout bool `mapstructure:"fail_on_timeout"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{Options: intercept.DefaultOptions(), Timeout: 5 * time.Second}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	return &cp
}

// Interceptor 互斥拦截器
type Interceptor struct {
	registry *intercept.Registry[*Config]
	logger   clog.Logger
}

// Option 组件初始化选项函数
type Option func(*Interceptor)

// WithLogger 设置 Logger，内部会自动添加 namespace: "synchronized"
func WithLogger(logger clog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger.WithNamespace("synchronized")
		}
	}
}

// New 创建互斥拦截器
func New(source intercept.Source, opts ...Option) *Interceptor {
	i := &Interceptor{logger: clog.Discard()}
	for _, opt := range opts {
		opt(i)
	}
	i.registry = intercept.NewRegistry(Kind, source,
		func() intercept.Declaration { return NewConfig() },
		func(_ intercept.Invocation, decl intercept.Declaration) (*Config, error) {
			cfg, ok := decl.(*Config)
			if !ok {
				return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "synchronized: unexpected declaration %T", decl)
			}
			return cfg, nil
		},
		intercept.WithLogger(i.logger),
	)
	return i
}

// Kind 实现 intercept.Interceptor
func (i *Interceptor) Kind() intercept.Kind { return Kind }

// Intercept 实现 intercept.Interceptor
func (i *Interceptor) Intercept(inv intercept.Invocation) error {
	cfg, ok := i.registry.Resolve(inv)
	if !ok {
		return inv.Proceed()
	}

	ctx := inv.Context()
	var mu Mutex
	if p, ok := inv.Target().(SyncRootProvider); ok {
		mu = p.SyncRoot()
	}
	if mu == nil {
		i.logger.WarnContext(ctx, "target does not provide a sync root, running unguarded",
			intercept.MethodField(inv), clog.String("target", typeName(inv.Target())))
		return inv.Proceed()
	}

	acquired, err := mu.TryLock(ctx, cfg.Timeout)
	if err != nil {
		return xerrors.Wrapf(err, "synchronized: lock %s", inv.Method())
	}
	if !acquired {
		i.logger.Log(ctx, cfg.LogLevel, "lock cannot be acquired",
			intercept.MethodField(inv), clog.Duration("timeout", cfg.Timeout))
		if cfg.FailOnTimeout {
			return ErrLockTimeout
		}
		return nil
	}

	defer func() {
		if err := mu.Unlock(context.WithoutCancel(ctx)); err != nil {
			i.logger.ErrorContext(ctx, "failed to release lock", intercept.MethodField(inv), clog.Error(err))
		}
	}()
	return inv.Proceed()
}

// SetDefault 设置未声明方法使用的默认配置
func (i *Interceptor) SetDefault(cfg *Config) error {
	if cfg == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "synchronized: default config is nil")
	}
	return i.registry.SetDefault(cfg)
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
