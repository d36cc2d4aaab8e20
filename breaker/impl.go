package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/metrics"
	"github.com/ceyewan/aspect/xerrors"
)

// Interceptor 熔断拦截器
type Interceptor struct {
	registry *intercept.Registry[*marker]
	logger   clog.Logger

	rejects metrics.Counter
	changes metrics.Counter
}

// marker 方法级标记：配置与该方法独占的熔断器
type marker struct {
	cfg *Config
	cb  *gobreaker.CircuitBreaker[any]
}

func (b *Interceptor) initMetrics(meter metrics.Meter) {
	var err error
	if b.rejects, err = meter.Counter(MetricRejectsTotal, "被熔断拒绝的调用数"); err != nil {
		b.logger.Error("failed to create counter", clog.String("name", MetricRejectsTotal), clog.Error(err))
		b.rejects, _ = metrics.Discard().Counter(MetricRejectsTotal, "")
	}
	if b.changes, err = meter.Counter(MetricStateChanges, "熔断器状态变更次数"); err != nil {
		b.logger.Error("failed to create counter", clog.String("name", MetricStateChanges), clog.Error(err))
		b.changes, _ = metrics.Discard().Counter(MetricStateChanges, "")
	}
}

// build 为方法创建独立的熔断器
func (b *Interceptor) build(inv intercept.Invocation, decl intercept.Declaration) (*marker, error) {
	cfg, ok := decl.(*Config)
	if !ok {
		return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "breaker: unexpected declaration %T", decl)
	}
	if cfg.FailureThreshold == 0 {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: failure_threshold must be positive")
	}

	// gobreaker 把非正的 Timeout 视为 60s，这里保持"立即可试探"的语义
	timeout := cfg.Timeout
	if timeout < time.Nanosecond {
		timeout = time.Nanosecond
	}

	method := inv.Method().String()
	threshold := cfg.FailureThreshold
	level := cfg.LogLevel
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        method,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := context.Background()
			b.logger.Log(ctx, level, "circuit breaker state changed",
				clog.String("method", name),
				clog.String(LabelFromState, toState(from).String()),
				clog.String(LabelToState, toState(to).String()))
			b.changes.Inc(ctx,
				metrics.L(metrics.LabelMethod, name),
				metrics.L(LabelFromState, toState(from).String()),
				metrics.L(LabelToState, toState(to).String()))
		},
	})

	b.logger.Debug("circuit breaker created",
		clog.String("method", method),
		clog.Uint64("failure_threshold", uint64(threshold)),
		clog.Duration("timeout", cfg.Timeout))

	return &marker{cfg: cfg, cb: cb}, nil
}

// ========================================
// 拦截逻辑 (Interception)
// ========================================

// Kind 实现 intercept.Interceptor
func (b *Interceptor) Kind() intercept.Kind { return Kind }

// Intercept 实现 intercept.Interceptor
//
// 熔断打开（或半开状态下已有试探调用在执行）时返回 ErrOpenState，真实方法不会被执行；
// 其余情况下原样返回真实方法的错误。
func (b *Interceptor) Intercept(inv intercept.Invocation) error {
	m, ok := b.registry.Resolve(inv)
	if !ok {
		return inv.Proceed()
	}
	return b.execute(inv, m).Error()
}

func (b *Interceptor) execute(inv intercept.Invocation, m *marker) intercept.Outcome {
	ran := false
	_, err := m.cb.Execute(func() (any, error) {
		ran = true
		return nil, inv.Proceed()
	})
	if err == nil {
		return intercept.Proceeded()
	}
	if ran {
		return intercept.Fail(err)
	}

	ctx := inv.Context()
	b.logger.Log(ctx, m.cfg.LogLevel, "call rejected by circuit breaker",
		intercept.MethodField(inv), clog.String("reason", err.Error()))
	b.rejects.Inc(ctx, metrics.L(metrics.LabelMethod, inv.Method().String()))
	return intercept.Reject(ErrOpenState)
}

// ========================================
// 状态查询 (Inspection)
// ========================================

// State 返回方法熔断器的当前状态；方法尚未被调用或未启用熔断时 ok 为 false
//
// 调用携带实现方法时，标记以实现方法为键。
func (b *Interceptor) State(method intercept.Method) (State, bool) {
	m, ok := b.registry.Marker(method)
	if !ok {
		return StateClosed, false
	}
	return toState(m.cb.State()), true
}

// Counts 返回方法熔断器当前代的计数
func (b *Interceptor) Counts(method intercept.Method) (Counts, bool) {
	m, ok := b.registry.Marker(method)
	if !ok {
		return Counts{}, false
	}
	c := m.cb.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}, true
}

// SetDefault 设置未声明方法使用的默认配置
func (b *Interceptor) SetDefault(cfg *Config) error {
	if cfg == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: default config is nil")
	}
	return b.registry.SetDefault(cfg)
}

func toState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
