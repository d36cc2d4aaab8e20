package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ceyewan/aspect/clog"
)

// Option 配置 Meter 实例的选项函数类型
type Option func(*options)

type options struct {
	logger     clog.Logger
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// WithLogger 注入日志记录器，组件会自动添加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithRegistry 将指标导出到指定的 Prometheus Registry
//
// perfcounter 与 Meter 共用同一个 Registry 时，两类指标会在同一个 /metrics 路径下暴露。
// 未设置时使用 prometheus.DefaultRegisterer。
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
			o.gatherer = reg
		}
	}
}
