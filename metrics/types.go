// Package metrics 提供基于 OpenTelemetry 的指标收集能力，由 Prometheus Exporter 导出。
//
// 拦截器（熔断、统计）和分布式锁通过 WithMeter 注入 Meter；未注入时使用 Discard()。
//
//	meter, err := metrics.New(metrics.NewDevDefaultConfig("order-service"),
//	    metrics.WithRegistry(reg))
//	if err != nil {
//	    return err
//	}
//	defer meter.Shutdown(ctx)
//
//	calls, _ := meter.Counter("interception_calls_total", "被拦截调用总数")
//	calls.Inc(ctx, metrics.L(metrics.LabelMethod, "orders.Service.Get"))
package metrics

import "context"

// Counter 只增不减的累计值，例如调用次数、熔断拒绝次数
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	// Add val 应为非负数
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可增可减的瞬时值，例如当前持有的锁数量
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 值的分布，例如调用耗时、锁持有时长
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂
//
// 同名指标只会注册一次，创建出的指标可以在多个 goroutine 中并发使用。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)
	// Shutdown 刷新并关闭 Meter，之后的记录会被丢弃
	Shutdown(ctx context.Context) error
}

// MetricOption 创建指标时的附加选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	// Unit UCUM 单位代码，例如 "s"、"By"
	Unit string
}

// WithUnit 设置指标单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}
