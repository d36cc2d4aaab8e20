package adapter

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
)

// UnaryServerInterceptor 返回经过拦截管道执行的 gRPC 一元服务端拦截器
//
//	server := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(adapter.UnaryServerInterceptor(pipeline)),
//	)
//
// 处理函数返回的 status 错误原样返回，其他错误按 GRPCCode 转换。
func UnaryServerInterceptor(p *intercept.Pipeline, opts ...Option) grpc.UnaryServerInterceptor {
	o := applyOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := GRPCMethod(info.FullMethod)
		if method.Type == "" {
			o.logger.WarnContext(ctx, "unparseable grpc method, bypassing pipeline",
				clog.String("full_method", info.FullMethod))
			return handler(ctx, req)
		}

		resp, err := p.Invoke(ctx, intercept.Call{
			Target: info.Server,
			Method: method,
			Args:   []any{req},
			Fn: func(ctx context.Context, args []any) (any, error) {
				return handler(ctx, args[0])
			},
		})
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		return nil, status.Error(GRPCCode(err), err.Error())
	}
}

// GRPCMethod 把 "/pkg.Service/Method" 转换为方法标识，无法识别时返回只有 Name 的方法
func GRPCMethod(fullMethod string) intercept.Method {
	name := strings.TrimPrefix(fullMethod, "/")
	i := strings.LastIndex(name, "/")
	if i <= 0 || i == len(name)-1 {
		return intercept.Method{Name: fullMethod}
	}
	return intercept.Method{Type: name[:i], Name: name[i+1:]}
}
