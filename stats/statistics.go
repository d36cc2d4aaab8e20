package stats

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Snapshot 某一时刻的统计快照
type Snapshot struct {
	Invocations uint64        `json:"invocations" msgpack:"invocations"`
	Exceptions  uint64        `json:"exceptions" msgpack:"exceptions"`
	Min         time.Duration `json:"min" msgpack:"min"`
	Max         time.Duration `json:"max" msgpack:"max"`
	Average     time.Duration `json:"average" msgpack:"average"`
	// Variance 总体方差，单位为秒的平方
	Variance  float64       `json:"variance" msgpack:"variance"`
	StdDev    time.Duration `json:"stddev" msgpack:"stddev"`
	Window    time.Duration `json:"window" msgpack:"window"`
	PerSecond float64       `json:"per_second" msgpack:"per_second"`
	PerMinute float64       `json:"per_minute" msgpack:"per_minute"`
	PerHour   float64       `json:"per_hour" msgpack:"per_hour"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("invocations=%d avg=%s min=%s max=%s stddev=%s #/s=%.4f #/m=%.4f #/h=%.4f exceptions=%d",
		s.Invocations, s.Average, s.Min, s.Max, s.StdDev, s.PerSecond, s.PerMinute, s.PerHour, s.Exceptions)
}

// Statistics 单个方法的耗时累加器，所有读写都在互斥锁内完成
type Statistics struct {
	cfg   *Config
	clock clock.Clock

	mu          sync.Mutex
	start       time.Time
	lastSample  time.Time
	invocations uint64
	exceptions  uint64
	min, max    time.Duration
	sum         float64 // 秒
	sumSquares  float64
}

// NewStatistics 创建累加器，cfg 为 nil 时使用默认配置，clk 为 nil 时使用系统时钟
func NewStatistics(cfg *Config, clk clock.Clock) *Statistics {
	if cfg == nil {
		cfg = NewConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &Statistics{cfg: cfg, clock: clk}
	s.reset()
	return s
}

// Record 记录一次调用耗时并返回通知原因
func (s *Statistics) Record(elapsed time.Duration) Reason {
	reason, _ := s.record(elapsed)
	return reason
}

// record 返回通知原因以及本次通知对应的快照；重置时快照为重置前的窗口
func (s *Statistics) record(elapsed time.Duration) (Reason, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason := ReasonNone
	if elapsed > s.max {
		s.max = elapsed
	}
	if s.invocations == 0 || elapsed < s.min {
		s.min = elapsed
	}

	x := elapsed.Seconds()
	if s.cfg.VarianceEnabled {
		if s.invocations > 0 {
			mean := s.sum / float64(s.invocations)
			band := math.Sqrt(s.variance()) * s.cfg.StandardDeviationThreshold
			if x > mean+band || x < mean-band {
				reason = ReasonStandardDeviationExceeded
			}
		}
		s.sumSquares += x * x
	}
	s.sum += x
	s.invocations++

	now := s.clock.Now()
	if s.cfg.SampleInterval < 0 || now.Sub(s.lastSample) > s.cfg.SampleInterval {
		s.lastSample = now
		reason = ReasonSample
	}

	snap := s.snapshot(now)
	if s.cfg.ResetInterval > 0 && now.Sub(s.start) > s.cfg.ResetInterval {
		s.reset()
		reason = ReasonReset
	}

	if elapsed < s.cfg.MinimumThreshold {
		reason = ReasonNone
	}
	return reason, snap
}

// RecordException 异常计数加一，与耗时统计相互独立
func (s *Statistics) RecordException() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions++
}

// Snapshot 返回当前窗口的统计快照
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.clock.Now())
}

func (s *Statistics) String() string {
	return s.Snapshot().String()
}

// reset 在 s.mu 内调用；上次采样时间不随窗口重置
func (s *Statistics) reset() {
	s.start = s.clock.Now()
	s.invocations = 0
	s.exceptions = 0
	s.min, s.max = 0, 0
	s.sum, s.sumSquares = 0, 0
}

// variance 总体方差，浮点误差导致的负值截断为 0
func (s *Statistics) variance() float64 {
	if s.invocations == 0 || s.sumSquares <= 0 {
		return 0
	}
	n := float64(s.invocations)
	v := (s.sumSquares - s.sum*s.sum/n) / n
	if v < 0 {
		return 0
	}
	return v
}

func (s *Statistics) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Invocations: s.invocations,
		Exceptions:  s.exceptions,
		Min:         s.min,
		Max:         s.max,
		Window:      now.Sub(s.start),
	}
	if s.invocations > 0 {
		n := float64(s.invocations)
		snap.Average = seconds(s.sum / n)
		snap.Variance = s.variance()
		snap.StdDev = seconds(math.Sqrt(snap.Variance))
	}
	if w := snap.Window.Seconds(); w > 0 {
		n := float64(s.invocations)
		snap.PerSecond = n / w
		snap.PerMinute = n / snap.Window.Minutes()
		snap.PerHour = n / snap.Window.Hours()
	}
	return snap
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}
