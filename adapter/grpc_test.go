package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/synchronized"
)

var getOrder = intercept.Method{Type: "orders.v1.OrderService", Name: "GetOrder"}

type orderServer struct {
	mu synchronized.Mutex
}

func (s *orderServer) SyncRoot() synchronized.Mutex { return s.mu }

func TestGRPCMethod(t *testing.T) {
	assert.Equal(t, getOrder, GRPCMethod("/orders.v1.OrderService/GetOrder"))
	assert.Equal(t, intercept.Method{Name: "GetOrder"}, GRPCMethod("GetOrder"))
	assert.Equal(t, intercept.Method{Name: "/orders.v1.OrderService/"}, GRPCMethod("/orders.v1.OrderService/"))
}

func TestUnaryServerInterceptor(t *testing.T) {
	p, _ := policies(getOrder)
	interceptor := UnaryServerInterceptor(p)
	server := &orderServer{mu: synchronized.NewMutex()}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: "/orders.v1.OrderService/GetOrder"}
	ctx := context.Background()

	resp, err := interceptor(ctx, "o-1", info, func(ctx context.Context, req any) (any, error) {
		return "order " + req.(string), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "order o-1", resp)

	// 处理函数自己的 status 错误保持不变
	_, err = interceptor(ctx, "o-1", info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "no such order")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	called := false
	_, err = interceptor(ctx, "o-1", info, func(context.Context, any) (any, error) {
		called = true
		return nil, nil
	})
	assert.False(t, called)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestUnaryServerInterceptor_LockTimeout(t *testing.T) {
	method := intercept.Method{Type: "orders.v1.OrderService", Name: "Cancel"}
	sync := synchronized.NewConfig()
	sync.Timeout = 0
	sync.FailOnTimeout = true
	catalog := intercept.NewCatalog().DeclareMethod(method, sync)
	p := intercept.NewPipeline(catalog, []intercept.Interceptor{synchronized.New(catalog)})

	server := &orderServer{mu: synchronized.NewMutex()}
	ok, err := server.mu.TryLock(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	info := &grpc.UnaryServerInfo{Server: server, FullMethod: "/orders.v1.OrderService/Cancel"}
	_, err = UnaryServerInterceptor(p)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, nil
	})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestUnaryServerInterceptor_UnknownMethodBypasses(t *testing.T) {
	p := intercept.NewPipeline(nil, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "Ping"}

	resp, err := UnaryServerInterceptor(p)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "pong", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)
}
