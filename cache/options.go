package cache

import "github.com/ceyewan/aspect/clog"

const defaultMaxEntries = 10000

// Option 缓存组件选项函数
type Option func(*options)

// options 选项结构（内部使用）
type options struct {
	logger     clog.Logger
	maxEntries int
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 Namespace: logger.WithNamespace("cache")
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("cache")
		}
	}
}

// WithMaxEntries 设置缓存项上限（默认：10000），超出后被淘汰的方法会在下一次调用时刷新
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}
