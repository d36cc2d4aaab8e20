// Package adapter 把 intercept.Pipeline 接入 gRPC 服务端、gin 与 net/http（chi）。
//
// 每个请求被映射为一次 Invocation：
//   - gRPC：/pkg.Service/Method → Method{Type: "pkg.Service", Name: "Method"}，info.Server 作为调用目标
//   - HTTP：Method{Type: "http", Name: "GET /orders/:id"}，取自匹配的路由模板；没有匹配路由的请求不经过管道
//
// 策略错误按 HTTPStatus 与 GRPCCode 映射：熔断拒绝为 503 / Unavailable，
// 获取锁超时为 429 / ResourceExhausted。处理函数没有被执行且没有错误时（例如
// 互斥策略静默跳过），HTTP 响应 204。HTTP 处理函数返回 5xx 视为调用失败。
//
// 适配器不会回放返回值，因此 HTTP 路由上声明 cache 策略没有意义。
package adapter

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/ceyewan/aspect/breaker"
	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/synchronized"
	"github.com/ceyewan/aspect/xerrors"
)

// TypeHTTP HTTP 请求映射后的类型名
const TypeHTTP = "http"

// ErrServerError 处理函数以 5xx 状态码结束
var ErrServerError = xerrors.New("adapter: handler responded with server error")

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "adapter"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("adapter")
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

// HTTPStatus 返回策略错误对应的 HTTP 状态码
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, breaker.ErrOpenState):
		return http.StatusServiceUnavailable
	case errors.Is(err, synchronized.ErrLockTimeout):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode 返回策略错误对应的 gRPC 状态码
func GRPCCode(err error) codes.Code {
	switch {
	case errors.Is(err, breaker.ErrOpenState):
		return codes.Unavailable
	case errors.Is(err, synchronized.ErrLockTimeout):
		return codes.ResourceExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Unknown
	}
}
