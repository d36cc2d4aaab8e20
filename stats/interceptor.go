package stats

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/metrics"
	"github.com/ceyewan/aspect/xerrors"
)

// 导出的指标名称
const (
	MetricCallsTotal      = "interception_calls_total"
	MetricErrorsTotal     = "interception_errors_total"
	MetricDurationSeconds = "interception_duration_seconds"
)

// Update 一次统计通知
type Update struct {
	Method   intercept.Method
	Reason   Reason
	Elapsed  time.Duration
	Snapshot Snapshot
	Config   *Config
}

// Listener 统计通知订阅者
type Listener func(ctx context.Context, u Update)

// marker 方法级标记
type marker struct {
	cfg   *Config
	stats *Statistics
}

// Interceptor 统计拦截器
type Interceptor struct {
	registry *intercept.Registry[*marker]
	logger   clog.Logger
	clock    clock.Clock

	calls    metrics.Counter
	errors   metrics.Counter
	duration metrics.Histogram

	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
}

// New 创建统计拦截器
func New(source intercept.Source, opts ...Option) *Interceptor {
	o := &options{logger: clog.Discard(), meter: metrics.Discard(), clock: clock.New()}
	for _, opt := range opts {
		opt(o)
	}

	i := &Interceptor{logger: o.logger, clock: o.clock, listeners: make(map[uint64]Listener)}
	i.initMetrics(o.meter)
	i.registry = intercept.NewRegistry(Kind, source,
		func() intercept.Declaration { return NewConfig() },
		func(_ intercept.Invocation, decl intercept.Declaration) (*marker, error) {
			cfg, ok := decl.(*Config)
			if !ok {
				return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "stats: unexpected declaration %T", decl)
			}
			return &marker{cfg: cfg, stats: NewStatistics(cfg, i.clock)}, nil
		},
		intercept.WithLogger(o.logger),
	)
	return i
}

func (i *Interceptor) initMetrics(meter metrics.Meter) {
	discard := metrics.Discard()
	var err error
	if i.calls, err = meter.Counter(MetricCallsTotal, "被拦截调用总数"); err != nil {
		i.logger.Error("failed to create counter", clog.String("name", MetricCallsTotal), clog.Error(err))
		i.calls, _ = discard.Counter(MetricCallsTotal, "")
	}
	if i.errors, err = meter.Counter(MetricErrorsTotal, "被拦截调用失败总数"); err != nil {
		i.logger.Error("failed to create counter", clog.String("name", MetricErrorsTotal), clog.Error(err))
		i.errors, _ = discard.Counter(MetricErrorsTotal, "")
	}
	if i.duration, err = meter.Histogram(MetricDurationSeconds, "被拦截调用耗时", metrics.WithUnit("s")); err != nil {
		i.logger.Error("failed to create histogram", clog.String("name", MetricDurationSeconds), clog.Error(err))
		i.duration, _ = discard.Histogram(MetricDurationSeconds, "")
	}
}

// Kind 实现 intercept.Interceptor
func (i *Interceptor) Kind() intercept.Kind { return Kind }

// Intercept 实现 intercept.Interceptor
//
// 真实方法 panic 时同样计入异常与耗时，随后继续向上 panic。
func (i *Interceptor) Intercept(inv intercept.Invocation) (err error) {
	m, ok := i.registry.Resolve(inv)
	if !ok {
		return inv.Proceed()
	}

	start := i.clock.Now()
	panicked := true
	defer func() {
		elapsed := i.clock.Since(start)
		failed := panicked || err != nil
		if failed {
			m.stats.RecordException()
		}
		i.observe(inv, m, elapsed, failed)
	}()

	err = inv.Proceed()
	panicked = false
	return err
}

func (i *Interceptor) observe(inv intercept.Invocation, m *marker, elapsed time.Duration, failed bool) {
	ctx := inv.Context()
	method := inv.Method()
	label := metrics.L(metrics.LabelMethod, method.String())

	outcome := metrics.OutcomeSuccess
	if failed {
		outcome = metrics.OutcomeError
		i.errors.Inc(ctx, label)
	}
	i.calls.Inc(ctx, label, metrics.L(metrics.LabelOutcome, outcome))
	i.duration.Record(ctx, elapsed.Seconds(), label)

	reason, snap := m.stats.record(elapsed)
	if reason == ReasonNone {
		return
	}

	i.logger.Log(ctx, m.cfg.LogLevel, "method statistics updated",
		intercept.MethodField(inv),
		clog.String("reason", reason.String()),
		clog.Duration("elapsed", elapsed),
		clog.String("statistics", snap.String()))

	i.notify(ctx, Update{Method: method, Reason: reason, Elapsed: elapsed, Snapshot: snap, Config: m.cfg})
}

// Subscribe 订阅统计通知，返回取消订阅函数
func (i *Interceptor) Subscribe(l Listener) (cancel func()) {
	if l == nil {
		return func() {}
	}
	i.mu.Lock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = l
	i.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			i.mu.Lock()
			delete(i.listeners, id)
			i.mu.Unlock()
		})
	}
}

func (i *Interceptor) notify(ctx context.Context, u Update) {
	i.mu.RLock()
	listeners := make([]Listener, 0, len(i.listeners))
	for _, l := range i.listeners {
		listeners = append(listeners, l)
	}
	i.mu.RUnlock()

	for _, l := range listeners {
		i.deliver(ctx, l, u)
	}
}

func (i *Interceptor) deliver(ctx context.Context, l Listener, u Update) {
	defer func() {
		if err := xerrors.Recovered(recover()); err != nil {
			i.logger.Error("statistics listener panicked",
				clog.String("method", u.Method.String()), clog.Error(err))
		}
	}()
	l(ctx, u)
}

// Statistics 返回方法的累加器；方法尚未被调用或未启用统计时 ok 为 false
func (i *Interceptor) Statistics(method intercept.Method) (*Statistics, bool) {
	m, ok := i.registry.Marker(method)
	if !ok {
		return nil, false
	}
	return m.stats, true
}

// SetDefault 设置未声明方法使用的默认配置
func (i *Interceptor) SetDefault(cfg *Config) error {
	if cfg == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "stats: default config is nil")
	}
	return i.registry.SetDefault(cfg)
}
