// Package invocation 提供调用日志策略：记录调用签名、耗时与失败。
//
// 日志只在对应级别启用时才构建签名；策略本身从不改变调用的控制流。
package invocation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// Kind 调用日志策略标签
const Kind intercept.Kind = "invocation_logger"

// Config 调用日志配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// Instrument 记录完成/失败日志与耗时（默认：true）
	Instrument bool `mapstructure:"instrument"`

	// EvaluateArguments 签名中输出参数值，否则只输出参数类型
	EvaluateArguments bool `mapstructure:"evaluate_arguments"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{Options: intercept.DefaultOptions(), Instrument: true}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	return &cp
}

// Interceptor 调用日志拦截器
type Interceptor struct {
	registry *intercept.Registry[*Config]
	logger   clog.Logger
}

// Option 组件初始化选项函数
type Option func(*Interceptor)

// WithLogger 设置 Logger，内部会自动添加 namespace: "invocation"
func WithLogger(logger clog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger.WithNamespace("invocation")
		}
	}
}

// New 创建调用日志拦截器
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
				return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "invocation: unexpected declaration %T", decl)
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
	if !i.logger.Enabled(ctx, cfg.LogLevel) {
		return inv.Proceed()
	}

	logger := i.logger.With(
		clog.String("call_id", uuid.NewString()[:8]),
		clog.String("signature", Signature(inv.Method(), inv.Arguments(), cfg.EvaluateArguments)),
	)
	logger.Log(ctx, cfg.LogLevel, "invocation started")

	start := time.Now()
	err := inv.Proceed()
	if !cfg.Instrument {
		return err
	}

	elapsed := time.Since(start)
	if err != nil {
		logger.Log(ctx, cfg.LogLevel, "invocation failed",
			clog.Duration("elapsed", elapsed), clog.Error(err))
		return err
	}
	logger.Log(ctx, cfg.LogLevel, "invocation completed", clog.Duration("elapsed", elapsed))
	return nil
}

// Signature 构建形如 "orders.Service.Get(42, <nil>)" 的调用签名
//
// evaluate 为 false 时输出参数类型，例如 "orders.Service.Get(int, <nil>)"。
func Signature(m intercept.Method, args []any, evaluate bool) string {
	var b strings.Builder
	b.WriteString(m.String())
	b.WriteByte('(')
	for n, arg := range args {
		if n > 0 {
			b.WriteString(", ")
		}
		switch {
		case arg == nil:
			b.WriteString("<nil>")
		case evaluate:
			fmt.Fprintf(&b, "%v", arg)
		default:
			fmt.Fprintf(&b, "%T", arg)
		}
	}
	b.WriteByte(')')
	return b.String()
}
