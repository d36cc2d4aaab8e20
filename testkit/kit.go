// Package testkit 提供测试共用的依赖：日志、指标、上下文，以及基于 testcontainers
// 的 Redis、Etcd、NATS、MySQL 后端。容器无法启动（例如没有 Docker）时测试会被跳过。
package testkit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/metrics"
)

// NewLogger 返回一个用于测试的 logger
// 输出到开发环境格式，适合本地调试
func NewLogger() clog.Logger {
	logger, err := clog.New(clog.NewDevDefaultConfig())
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个导出到独立 Prometheus 注册表的 meter，以及该注册表
func NewMeter(t *testing.T) (metrics.Meter, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	meter, err := metrics.New(metrics.NewDevDefaultConfig("test"), metrics.WithRegistry(reg))
	require.NoError(t, err, "failed to create meter")
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return meter, reg
}

// CounterValue 汇总注册表中名称以 prefix 开头的全部计数器
//
// OpenTelemetry 导出器可能为指标名追加单位或 _total 后缀，因此按前缀匹配。
func CounterValue(t *testing.T, reg prometheus.Gatherer, prefix string) float64 {
	t.Helper()
	prefix = strings.TrimSuffix(prefix, "_total")
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
// 用于生成唯一的 Key、Subject 或表名后缀，避免测试间数据冲突
func NewID() string {
	return uuid.New().String()[0:8]
}

// skipIntegration 在 -short 模式下跳过依赖外部服务的测试
func skipIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
