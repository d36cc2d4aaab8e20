package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// NewEtcdClient 使用 testcontainers 启动 Etcd 并返回原生客户端
// 生命周期由 t.Cleanup 管理
func NewEtcdClient(t *testing.T) *clientv3.Client {
	t.Helper()
	skipIntegration(t)
	ctx := context.Background()

	container, err := tcetcd.Run(ctx, "quay.io/coreos/etcd:v3.5.9")
	if err != nil {
		t.Skipf("etcd container unavailable: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "2379")
	require.NoError(t, err)
	endpoint := host + ":" + port.Port()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: 5 * time.Second,
	})
	require.NoError(t, err, "failed to create etcd client")
	t.Cleanup(func() { _ = client.Close() })
	return client
}
