// Package clog 提供基于 slog 的结构化日志组件。
// 支持 Context 字段提取、OpenTelemetry TraceID 提取和命名空间管理。
//
// 拦截器按照各自标记上配置的级别输出日志，因此除了 Debug/Info 等固定级别方法，
// Logger 还提供 Log(ctx, level, ...) 与 Enabled(ctx, level)。
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("Hello, World!", clog.String("key", "value"))
//
// 使用函数式选项：
//
//	logger, _ := clog.New(&clog.Config{Level: "info"},
//	    clog.WithNamespace("order-service", "interception"),
//	    clog.WithTraceContext(), // 自动提取 trace_id, span_id
//	)
package clog

import "context"

// Logger 日志接口，提供结构化日志记录功能
//
// 支持五个日志级别：Debug、Info、Warn、Error、Fatal
// 每个级别都有带 Context 和不带 Context 的版本
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// 带 Context 的日志级别方法，用于自动提取 Context 字段
	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// Log 以运行时决定的级别记录日志
	Log(ctx context.Context, level Level, msg string, fields ...Field)

	// Enabled 判断指定级别的日志是否会被输出
	//
	// 构造代价较高的字段（例如参数求值后的调用签名）前应先调用 Enabled。
	Enabled(ctx context.Context, level Level) bool

	// With 创建一个带有预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 创建一个扩展命名空间的子 Logger
	//
	// 示例：
	//   logger := clog.WithNamespace("service", "api")
	//   handlerLogger := logger.WithNamespace("users")
	//   // 最终命名空间为 "service.api.users"
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别
	SetLevel(level Level) error

	// Flush 强制同步所有缓冲区的日志
	Flush()
}
