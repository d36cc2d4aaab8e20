// Package cache 提供按方法缓存返回值的策略。
//
// 每个方法只保存一份最近一次成功调用的返回值及其写入时间（不区分参数）：
//   - 没有缓存项，或缓存项的年龄超过 TTL：执行真实方法，成功后覆盖缓存项
//   - 否则直接返回缓存值，真实方法不会被执行
//
// 真实方法返回错误时缓存项保持不变，错误原样传播。过期后的刷新不做互斥，
// 并发穿透的调用都会执行真实方法，后写入者胜出。
//
// 基本使用：
//
//	catalog := intercept.NewCatalog().DeclareMethod(
//	    intercept.Method{Type: "config.Client", Name: "Settings"},
//	    &cache.Config{Options: intercept.DefaultOptions(), TTL: time.Minute},
//	)
//	c, err := cache.New(catalog, cache.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
package cache

import (
	"time"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// Kind 缓存策略标签
const Kind intercept.Kind = "cache"

// Config 缓存策略配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// TTL 缓存项有效期（默认：1h），为 0 时每次调用都会刷新
	TTL time.Duration `mapstructure:"ttl"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Options: intercept.DefaultOptions(),
		TTL:     time.Hour,
	}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	return &cp
}

// Interceptor 缓存拦截器
type Interceptor struct {
	registry *intercept.Registry[*Config]
	entries  *store
	logger   clog.Logger
}

// New 创建缓存拦截器
func New(source intercept.Source, opts ...Option) (*Interceptor, error) {
	o := &options{logger: clog.Discard(), maxEntries: defaultMaxEntries}
	for _, opt := range opts {
		opt(o)
	}

	entries, err := newStore(o.maxEntries)
	if err != nil {
		return nil, err
	}

	c := &Interceptor{entries: entries, logger: o.logger}
	c.registry = intercept.NewRegistry(Kind, source,
		func() intercept.Declaration { return NewConfig() },
		build,
		intercept.WithLogger(o.logger),
	)
	return c, nil
}

func build(_ intercept.Invocation, decl intercept.Declaration) (*Config, error) {
	cfg, ok := decl.(*Config)
	if !ok {
		return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "cache: unexpected declaration %T", decl)
	}
	if cfg.TTL < 0 {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "cache: negative ttl %s", cfg.TTL)
	}
	return cfg, nil
}

// Kind 实现 intercept.Interceptor
func (c *Interceptor) Kind() intercept.Kind { return Kind }

// Intercept 实现 intercept.Interceptor
func (c *Interceptor) Intercept(inv intercept.Invocation) error {
	cfg, ok := c.registry.Resolve(inv)
	if !ok {
		return inv.Proceed()
	}

	ctx := inv.Context()
	key := intercept.Identity(inv)
	if e, ok := c.entries.get(key); ok {
		age := time.Since(e.stored)
		if age <= cfg.TTL {
			c.logger.Log(ctx, cfg.LogLevel, "cache hit",
				intercept.MethodField(inv), clog.Duration("age", age))
			inv.SetReturnValue(e.value)
			return nil
		}
		c.logger.Log(ctx, cfg.LogLevel, "cache entry expired, refreshing",
			intercept.MethodField(inv), clog.Duration("age", age))
	}

	if err := inv.Proceed(); err != nil {
		return err
	}
	c.entries.set(key, inv.ReturnValue())
	return nil
}

// SetDefault 设置未声明方法使用的默认配置
//
// 默认缓存会作用于所有未显式关闭缓存的方法，因此会输出一条警告。
func (c *Interceptor) SetDefault(cfg *Config) error {
	if cfg == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "cache: default config is nil")
	}
	c.logger.Warn("default cache configuration applies to every undeclared method",
		clog.Duration("ttl", cfg.TTL))
	return c.registry.SetDefault(cfg)
}

// Invalidate 丢弃方法的缓存项，下一次调用会执行真实方法
func (c *Interceptor) Invalidate(method intercept.Method) {
	c.entries.invalidate(method)
}

// Close 停止缓存后台协程
func (c *Interceptor) Close() error {
	c.entries.close()
	return nil
}
