// Package intercept 是拦截管道的核心：方法标识、调用对象、声明式配置目录、
// 按方法惰性解析并缓存标记（Marker）的注册表，以及按 order 排序的拦截器选择器。
//
// 每个策略（熔断、缓存、统计……）实现 Interceptor，并持有一个 Registry 用于
// 把方法映射到该策略的标记。标记在某个方法第一次被调用时解析，之后直接命中缓存。
//
// 基本使用：
//
//	catalog := intercept.NewCatalog().
//	    DeclareMethod(intercept.Method{Type: "orders.Service", Name: "Get"}, &cache.Config{...})
//	br := breaker.New(catalog)
//	ca, _ := cache.New(catalog)
//	pipeline := intercept.NewPipeline(catalog, []intercept.Interceptor{br, ca})
//
//	v, err := pipeline.Invoke(ctx, intercept.Call{
//	    Target: svc,
//	    Method: intercept.Method{Type: "orders.Service", Name: "Get"},
//	    Args:   []any{id},
//	    Fn: func(ctx context.Context, args []any) (any, error) {
//	        return svc.Get(ctx, args[0].(string))
//	    },
//	})
package intercept

import (
	"context"
	"strings"

	"github.com/ceyewan/aspect/clog"
)

// Kind 策略类型标签，选择器按 Kind 匹配声明与拦截器
type Kind string

// Method 方法标识
type Method struct {
	Type string // 声明类型，如 "orders.Service"
	Name string // 方法名，如 "Get"
}

// ParseMethod 按最后一个 "." 拆分 "Type.Name" 形式的字符串
func ParseMethod(s string) Method {
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return Method{Name: s}
	}
	return Method{Type: s[:i], Name: s[i+1:]}
}

func (m Method) String() string {
	if m.Type == "" {
		return m.Name
	}
	return m.Type + "." + m.Name
}

// IsZero 判断是否为未知方法
func (m Method) IsZero() bool {
	return m.Type == "" && m.Name == ""
}

// Options 是所有策略配置共有的字段，策略配置通过嵌入 Options 获得 Common 方法
type Options struct {
	// Order 越小越靠外层
	Order int `mapstructure:"order"`
	// Intercept 为 false 时该方法不应用此策略
	Intercept bool `mapstructure:"intercept"`
	// LogLevel 策略输出日志的级别
	LogLevel clog.Level `mapstructure:"log_level"`
}

// DefaultOptions 返回默认的公共字段：启用拦截，Debug 级别日志
func DefaultOptions() Options {
	return Options{Intercept: true, LogLevel: clog.DebugLevel}
}

// Common 返回公共字段
func (o *Options) Common() *Options {
	return o
}

// Declaration 声明式配置，每个策略的 Config 都实现该接口
type Declaration interface {
	Kind() Kind
	Common() *Options
	// Clone 返回独立副本，默认实例被克隆后分配给各个方法
	Clone() Declaration
}

// Invocation 一次被拦截的调用
type Invocation interface {
	// Context 当前调用的上下文，真实方法会收到该上下文
	Context() context.Context
	// SetContext 替换后续链路（包括真实方法）看到的上下文
	SetContext(ctx context.Context)
	// Method 被调用的方法（通常是接口方法）
	Method() Method
	// Implementation 实际执行的实现方法，未知时为零值
	Implementation() Method
	// DeclaringType 声明方法的类型
	DeclaringType() string
	// Target 被调用的实例，用于探测 SyncRootProvider、Handler 等能力
	Target() any
	Arguments() []any
	// Proceed 执行链路中的下一个拦截器，最终执行真实方法
	Proceed() error
	ReturnValue() any
	SetReturnValue(v any)
}

// Interceptor 一个策略的环绕逻辑
type Interceptor interface {
	Kind() Kind
	Intercept(inv Invocation) error
}

// Identity 返回标记缓存使用的方法标识：已知实现方法时使用实现方法
func Identity(inv Invocation) Method {
	if impl := inv.Implementation(); !impl.IsZero() {
		return impl
	}
	return inv.Method()
}

// MethodField 以 "method" 为键的日志字段
func MethodField(inv Invocation) clog.Field {
	return clog.String("method", inv.Method().String())
}
