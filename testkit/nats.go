package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
)

// NewNATSConn 使用 testcontainers 启动 NATS 并返回原生连接
// 生命周期由 t.Cleanup 管理
func NewNATSConn(t *testing.T) *nats.Conn {
	t.Helper()
	skipIntegration(t)
	ctx := context.Background()

	container, err := natscontainer.Run(ctx, "nats:2.10-alpine")
	if err != nil {
		t.Skipf("nats container unavailable: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	conn, err := nats.Connect(uri,
		nats.MaxReconnects(10),
		nats.ReconnectWait(100*time.Millisecond),
	)
	require.NoError(t, err, "failed to connect to nats")
	t.Cleanup(conn.Close)
	return conn
}
