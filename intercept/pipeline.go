package intercept

import (
	"context"
	"sync"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/xerrors"
)

// Call 描述一次待执行的调用
type Call struct {
	// Target 被调用的实例
	Target any
	// Method 被调用的方法
	Method Method
	// Implementation 实际执行的实现方法，可以为零值
	Implementation Method
	Args           []any
	// Fn 真实方法，ctx 为链路传递下来的上下文
	Fn func(ctx context.Context, args []any) (any, error)
}

type chainKey struct {
	method         Method
	implementation Method
	selector       Selector
}

// Pipeline 在进程内组装并执行拦截链
//
// 每个方法的链路只通过 Selector 计算一次并缓存。
type Pipeline struct {
	source       Source
	interceptors []Interceptor
	selector     Selector
	logger       clog.Logger
	chains       sync.Map // chainKey -> []Interceptor
}

// NewPipeline 创建拦截管道，interceptors 为装配进来的全部策略
func NewPipeline(source Source, interceptors []Interceptor, opts ...Option) *Pipeline {
	o := applyOptions(opts)
	return &Pipeline{
		source:       source,
		interceptors: interceptors,
		logger:       o.logger.WithNamespace("pipeline"),
	}
}

// Chain 返回方法对应的有序拦截器链
func (p *Pipeline) Chain(method, implementation Method) []Interceptor {
	key := chainKey{method: method, implementation: implementation, selector: p.selector}
	if v, ok := p.chains.Load(key); ok {
		return v.([]Interceptor)
	}

	var declared []Declaration
	if p.source != nil {
		declared = p.source.Declared(method, implementation)
	}
	chain := p.selector.Select(declared, p.interceptors)
	v, loaded := p.chains.LoadOrStore(key, chain)
	if !loaded {
		kinds := make([]string, len(chain))
		for i, ic := range chain {
			kinds[i] = string(ic.Kind())
		}
		p.logger.Debug("interceptor chain compiled",
			clog.String("method", method.String()), clog.Any("chain", kinds))
	}
	return v.([]Interceptor)
}

// Invoke 经过拦截链执行调用，返回最终的返回值与错误
func (p *Pipeline) Invoke(ctx context.Context, call Call) (any, error) {
	if call.Fn == nil {
		return nil, ErrNoFunction
	}
	if ctx == nil {
		ctx = context.Background()
	}
	inv := &invocation{
		ctx:   ctx,
		call:  call,
		chain: p.Chain(call.Method, call.Implementation),
	}
	err := inv.Proceed()
	return inv.ret, err
}

// As 将 Invoke 的结果转换为具体类型
//
//	order, err := intercept.As[*Order](pipeline.Invoke(ctx, call))
func As[T any](v any, err error) (T, error) {
	var zero T
	if v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		if err != nil {
			return zero, err
		}
		return zero, xerrors.Wrapf(ErrResultType, "%T", v)
	}
	return t, err
}

// invocation 是 Invocation 的实现，pos 指向下一个要执行的拦截器
type invocation struct {
	ctx   context.Context
	call  Call
	chain []Interceptor
	pos   int
	ret   any
}

func (i *invocation) Context() context.Context       { return i.ctx }
func (i *invocation) SetContext(ctx context.Context) { i.ctx = ctx }
func (i *invocation) Method() Method                 { return i.call.Method }
func (i *invocation) Implementation() Method         { return i.call.Implementation }
func (i *invocation) DeclaringType() string          { return i.call.Method.Type }
func (i *invocation) Target() any                    { return i.call.Target }
func (i *invocation) Arguments() []any               { return i.call.Args }
func (i *invocation) ReturnValue() any               { return i.ret }
func (i *invocation) SetReturnValue(v any)           { i.ret = v }

// Proceed 执行下一个拦截器；拦截器返回后恢复位置，因此同一拦截器可以多次 Proceed
func (i *invocation) Proceed() error {
	if i.pos < len(i.chain) {
		next := i.chain[i.pos]
		i.pos++
		defer func() { i.pos-- }()
		return next.Intercept(i)
	}
	ret, err := i.call.Fn(i.ctx, i.call.Args)
	i.ret = ret
	return err
}
