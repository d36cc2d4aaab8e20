// Package breaker 提供按方法隔离的熔断策略。
//
// 每个被拦截的方法拥有独立的熔断器（基于 gobreaker），状态机如下：
//   - Closed：正常放行，连续失败次数达到 FailureThreshold 时进入 Open
//   - Open：直接返回 ErrOpenState，不执行真实方法；Timeout 之后的下一次调用进入 HalfOpen
//   - HalfOpen：只放行一次试探调用，成功则回到 Closed，失败则立即回到 Open
//
// 状态与计数的变更在熔断器内部互斥锁中完成，因此阈值判定是线性一致的。
//
// 基本使用：
//
//	catalog := intercept.NewCatalog().DeclareMethod(
//	    intercept.Method{Type: "payment.Client", Name: "Charge"},
//	    &breaker.Config{Options: intercept.DefaultOptions(), FailureThreshold: 5, Timeout: 30 * time.Second},
//	)
//	brk := breaker.New(catalog, breaker.WithLogger(logger), breaker.WithMeter(meter))
package breaker

import (
	"time"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/metrics"
)

// Kind 熔断策略标签
const Kind intercept.Kind = "circuit_breaker"

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Counts 当前代（generation）内的调用计数，状态切换时清零
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断策略配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// FailureThreshold 连续失败多少次后熔断（默认：5）
	FailureThreshold uint32 `mapstructure:"failure_threshold"`

	// Timeout 打开状态持续时间（默认：60s），小于等于 0 表示下一次调用即可试探
	Timeout time.Duration `mapstructure:"timeout"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Options:          intercept.DefaultOptions(),
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	return &cp
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断拦截器
//
// source 提供按方法/类型声明的 Config；未声明的方法使用 SetDefault 设置的默认实例，
// 否则使用 NewConfig()。
func New(source intercept.Source, opts ...Option) *Interceptor {
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	b := &Interceptor{logger: o.logger}
	b.initMetrics(o.meter)
	b.registry = intercept.NewRegistry(Kind, source,
		func() intercept.Declaration { return NewConfig() },
		b.build,
		intercept.WithLogger(o.logger),
	)
	return b
}
