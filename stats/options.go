package stats

import (
	"github.com/benbjohnson/clock"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  clock.Clock
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "stats"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("stats")
		}
	}
}

// WithMeter 把调用次数、错误次数与耗时导出为指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock 设置计时与统计窗口使用的时钟，测试中可传入 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}
