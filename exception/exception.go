// Package exception 提供失败过滤、转交处理与吞没的策略。
//
// 调用失败时：
//  1. Errors 与 Codes 都为空，或错误命中其中之一时继续处理，否则原样返回
//  2. 调用目标实现了 Handler 时，以 Tag（为空时使用方法标识）调用 HandleError
//  3. Swallow 为 true 时吞掉错误，否则返回原始错误
//
// Handler 自身的 panic 不做捕获。无论 Handler 做了什么，向上传播的始终是原始错误。
package exception

import (
	"context"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// Kind 异常策略标签
const Kind intercept.Kind = "exception"

// Handler 调用目标可实现的错误处理能力
type Handler interface {
	HandleError(ctx context.Context, tag string, err error)
}

// Config 异常策略配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// Errors 需要处理的错误，按 errors.Is 匹配
	Errors []error `mapstructure:"-"`

	// Codes 需要处理的错误码，按 xerrors.GetCode 匹配
	Codes []string `mapstructure:"codes"`

	// Tag 传给 Handler 的标签，为空时使用方法标识
	Tag string `mapstructure:"tag"`

	// Swallow 处理后吞掉错误
	Swallow bool `mapstructure:"swallow"`
}

// NewConfig 返回默认配置，失败日志使用 Error 级别
func NewConfig() *Config {
	opts := intercept.DefaultOptions()
	opts.LogLevel = clog.ErrorLevel
	return &Config{Options: opts}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	cp.Errors = append([]error(nil), c.Errors...)
	cp.Codes = append([]string(nil), c.Codes...)
	return &cp
}

// matches 判断错误是否在过滤列表内，列表为空时匹配所有错误
func (c *Config) matches(err error) bool {
	if len(c.Errors) == 0 && len(c.Codes) == 0 {
		return true
	}
	return xerrors.IsAny(err, c.Errors...) || xerrors.HasCode(err, c.Codes...)
}

// Interceptor 异常拦截器
type Interceptor struct {
	registry *intercept.Registry[*Config]
	logger   clog.Logger
}

// Option 组件初始化选项函数
type Option func(*Interceptor)

// WithLogger 设置 Logger，内部会自动添加 namespace: "exception"
func WithLogger(logger clog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger.WithNamespace("exception")
		}
	}
}

// New 创建异常拦截器
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
				return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "exception: unexpected declaration %T", decl)
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

	err := inv.Proceed()
	if err == nil || !cfg.matches(err) {
		return err
	}

	ctx := inv.Context()
	tag := cfg.Tag
	if tag == "" {
		tag = inv.Method().String()
	}
	i.logger.Log(ctx, cfg.LogLevel, "intercepted call failed",
		intercept.MethodField(inv), clog.String("tag", tag),
		clog.Bool("swallow", cfg.Swallow), clog.Error(err))

	if h, ok := inv.Target().(Handler); ok {
		h.HandleError(ctx, tag, err)
	}
	if cfg.Swallow {
		return nil
	}
	return err
}

// SetDefault 设置未声明方法使用的默认配置
func (i *Interceptor) SetDefault(cfg *Config) error {
	if cfg == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "exception: default config is nil")
	}
	return i.registry.SetDefault(cfg)
}
