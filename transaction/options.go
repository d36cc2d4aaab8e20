package transaction

import "github.com/ceyewan/aspect/clog"

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "transaction"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("transaction")
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
