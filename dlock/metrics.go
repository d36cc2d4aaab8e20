package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/metrics"
)

// Metrics 指标常量定义
const (
	// MetricLockAcquired 锁获取成功次数 (Counter)
	MetricLockAcquired = "dlock_lock_acquired_total"

	// MetricLockFailed 锁获取失败次数 (Counter)
	MetricLockFailed = "dlock_lock_failed_total"

	// MetricLockReleased 锁释放次数 (Counter)
	MetricLockReleased = "dlock_lock_released_total"

	// MetricLockHoldDuration 锁持有时长 (Histogram)
	MetricLockHoldDuration = "dlock_lock_hold_duration_seconds"

	// MetricLocksHeld 当前持有的锁数量 (Gauge)
	MetricLocksHeld = "dlock_locks_held"

	// LabelBackend 后端类型标签
	LabelBackend = "backend"
)

const (
	BackendRedis = "redis"
	BackendEtcd  = "etcd"
)

type lockMetrics struct {
	backend  metrics.Label
	acquired metrics.Counter
	failed   metrics.Counter
	released metrics.Counter
	hold     metrics.Histogram
	held     metrics.Gauge
}

func newLockMetrics(o *options, backend string) *lockMetrics {
	m := &lockMetrics{backend: metrics.L(LabelBackend, backend)}
	discard := metrics.Discard()

	var err error
	if m.acquired, err = o.meter.Counter(MetricLockAcquired, "锁获取成功次数"); err != nil {
		o.logger.Error("failed to create counter", clog.String("name", MetricLockAcquired), clog.Error(err))
		m.acquired, _ = discard.Counter(MetricLockAcquired, "")
	}
	if m.failed, err = o.meter.Counter(MetricLockFailed, "锁获取失败次数"); err != nil {
		o.logger.Error("failed to create counter", clog.String("name", MetricLockFailed), clog.Error(err))
		m.failed, _ = discard.Counter(MetricLockFailed, "")
	}
	if m.released, err = o.meter.Counter(MetricLockReleased, "锁释放次数"); err != nil {
		o.logger.Error("failed to create counter", clog.String("name", MetricLockReleased), clog.Error(err))
		m.released, _ = discard.Counter(MetricLockReleased, "")
	}
	if m.hold, err = o.meter.Histogram(MetricLockHoldDuration, "锁持有时长", metrics.WithUnit("s")); err != nil {
		o.logger.Error("failed to create histogram", clog.String("name", MetricLockHoldDuration), clog.Error(err))
		m.hold, _ = discard.Histogram(MetricLockHoldDuration, "")
	}
	if m.held, err = o.meter.Gauge(MetricLocksHeld, "当前持有的锁数量"); err != nil {
		o.logger.Error("failed to create gauge", clog.String("name", MetricLocksHeld), clog.Error(err))
		m.held, _ = discard.Gauge(MetricLocksHeld, "")
	}
	return m
}

func (m *lockMetrics) onAcquire(ctx context.Context, ok bool) {
	if ok {
		m.acquired.Inc(ctx, m.backend)
		m.held.Inc(ctx, m.backend)
	} else {
		m.failed.Inc(ctx, m.backend)
	}
}

func (m *lockMetrics) onRelease(ctx context.Context, since time.Time) {
	m.released.Inc(ctx, m.backend)
	m.held.Dec(ctx, m.backend)
	m.hold.Record(ctx, time.Since(since).Seconds(), m.backend)
}
