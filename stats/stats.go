// Package stats 提供调用耗时统计策略：按方法累计调用次数、异常次数、
// 最小/最大/平均耗时与总体方差，并在采样、重置或偏离均值过大时通知订阅者。
//
// 通知规则（每次调用结束后按顺序判定，后者覆盖前者）：
//  1. 启用方差时，样本偏离当前均值超过 StandardDeviationThreshold 个标准差：StandardDeviationExceeded
//  2. 距离上次采样超过 SampleInterval：Sample
//  3. 距离窗口开始超过 ResetInterval：清零所有计数，Reset
//  4. 样本耗时低于 MinimumThreshold：不通知
//
// 订阅者的 panic 会被捕获并记录日志，不影响调用本身与其他订阅者。
//
// 基本使用：
//
//	st := stats.New(catalog, stats.WithLogger(logger), stats.WithMeter(meter))
//	cancel := st.Subscribe(func(ctx context.Context, u stats.Update) {
//	    logger.Info("stats updated", clog.String("method", u.Method.String()), clog.String("reason", u.Reason.String()))
//	})
//	defer cancel()
package stats

import (
	"time"

	"github.com/ceyewan/aspect/intercept"
)

// Kind 统计策略标签
const Kind intercept.Kind = "metrics"

// Reason 通知原因
type Reason int

const (
	// ReasonNone 无需通知
	ReasonNone Reason = iota
	// ReasonReset 统计窗口被重置
	ReasonReset
	// ReasonSample 周期性采样
	ReasonSample
	// ReasonStandardDeviationExceeded 样本偏离均值超过阈值
	ReasonStandardDeviationExceeded
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonReset:
		return "reset"
	case ReasonSample:
		return "sample"
	case ReasonStandardDeviationExceeded:
		return "stddev_exceeded"
	default:
		return "unknown"
	}
}

// Config 统计策略配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// SampleInterval 采样通知间隔（默认：24h），为负数时每次调用都采样
	SampleInterval time.Duration `mapstructure:"sample_interval"`

	// ResetInterval 统计窗口长度（默认：7 天），小于等于 0 表示永不重置
	ResetInterval time.Duration `mapstructure:"reset_interval"`

	// MinimumThreshold 低于该耗时的调用只计数不通知（默认：1s）
	MinimumThreshold time.Duration `mapstructure:"minimum_threshold"`

	// VarianceEnabled 是否计算方差（默认：false）
	VarianceEnabled bool `mapstructure:"variance_enabled"`

	// StandardDeviationThreshold 偏离均值多少个标准差时通知（默认：3）
	StandardDeviationThreshold float64 `mapstructure:"standard_deviation_threshold"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Options:                    intercept.DefaultOptions(),
		SampleInterval:             24 * time.Hour,
		ResetInterval:              7 * 24 * time.Hour,
		MinimumThreshold:           time.Second,
		StandardDeviationThreshold: 3,
	}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	return &cp
}
