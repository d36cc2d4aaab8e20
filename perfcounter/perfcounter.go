// Package perfcounter 提供性能计数器策略：在调用前后增减 Prometheus 计数器。
//
// 计数器名称为 "<prefix>:<name>"，由显式创建的 Registry 统一管理：
//   - number：Gauge，调用前 Inc，配置 Decrement 时调用后 Dec（例如执行中的调用数）
//   - rate：Counter，调用前 Inc
//   - average：Counter 累加耗时（秒），"<name>_base" 累加调用次数，二者相除即平均耗时
//
// 计数器在方法第一次调用时初始化，只尝试一次；初始化失败会记录一次日志，
// 此后该方法的调用照常执行但不再计数。
package perfcounter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// Kind 性能计数器策略标签
const Kind intercept.Kind = "perf_counter"

// CounterType 计数器类型
type CounterType string

const (
	TypeNumber  CounterType = "number"
	TypeRate    CounterType = "rate"
	TypeAverage CounterType = "average"
)

// Config 性能计数器配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// Name 计数器名称，附加在前缀之后
	Name string `mapstructure:"name"`

	// Help 计数器说明
	Help string `mapstructure:"help"`

	// Type 计数器类型（默认：number）
	Type CounterType `mapstructure:"type"`

	// Increment 调用前增加计数（默认：true）
	Increment bool `mapstructure:"increment"`

	// Decrement 调用后减少计数，仅 number 类型可用
	Decrement bool `mapstructure:"decrement"`

	// AlwaysRecreate 初始化时先注销同名计数器再重新注册
	AlwaysRecreate bool `mapstructure:"always_recreate"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{Options: intercept.DefaultOptions(), Type: TypeNumber, Increment: true}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	return &cp
}

// State 标记的初始化状态
type State int

const (
	StateNone State = iota
	StateInitialized
	StateError
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInitialized:
		return "initialized"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// marker 方法级标记，计数器在第一次调用时初始化
type marker struct {
	cfg   *Config
	once  sync.Once
	state atomic.Int32
	pair  *Pair
}

// Interceptor 性能计数器拦截器
type Interceptor struct {
	counters *Registry
	registry *intercept.Registry[*marker]
	logger   clog.Logger
}

// Option 组件初始化选项函数
type Option func(*Interceptor)

// WithLogger 设置 Logger，内部会自动添加 namespace: "perfcounter"
func WithLogger(logger clog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger.WithNamespace("perfcounter")
		}
	}
}

// New 创建性能计数器拦截器，counters 为 nil 时使用默认 Prometheus 注册表
func New(counters *Registry, source intercept.Source, opts ...Option) *Interceptor {
	if counters == nil {
		counters = NewRegistry(nil)
	}
	i := &Interceptor{counters: counters, logger: clog.Discard()}
	for _, opt := range opts {
		opt(i)
	}
	i.registry = intercept.NewRegistry(Kind, source,
		func() intercept.Declaration { return NewConfig() },
		func(_ intercept.Invocation, decl intercept.Declaration) (*marker, error) {
			cfg, ok := decl.(*Config)
			if !ok {
				return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "perfcounter: unexpected declaration %T", decl)
			}
			return &marker{cfg: cfg}, nil
		},
		intercept.WithLogger(i.logger),
	)
	return i
}

// Kind 实现 intercept.Interceptor
func (i *Interceptor) Kind() intercept.Kind { return Kind }

// Intercept 实现 intercept.Interceptor
func (i *Interceptor) Intercept(inv intercept.Invocation) error {
	m, ok := i.registry.Resolve(inv)
	if !ok {
		return inv.Proceed()
	}

	m.once.Do(func() { i.init(inv, m) })
	if State(m.state.Load()) != StateInitialized {
		return inv.Proceed()
	}

	cfg, pair := m.cfg, m.pair
	start := time.Now()
	if cfg.Increment {
		switch cfg.Type {
		case TypeNumber:
			pair.Gauge.Inc()
		case TypeRate:
			pair.Counter.Inc()
		}
	}
	defer func() {
		switch cfg.Type {
		case TypeNumber:
			if cfg.Decrement {
				pair.Gauge.Dec()
			}
		case TypeAverage:
			if cfg.Increment {
				pair.Counter.Add(time.Since(start).Seconds())
				pair.Base.Inc()
			}
		}
	}()
	return inv.Proceed()
}

func (i *Interceptor) init(inv intercept.Invocation, m *marker) {
	err := validate(m.cfg)
	if err == nil {
		m.pair, err = i.counters.Pair(m.cfg)
	}
	if err != nil {
		m.state.Store(int32(StateError))
		i.logger.Error("cannot initialize performance counter",
			intercept.MethodField(inv), clog.String("counter", m.cfg.Name), clog.Error(err))
		return
	}
	m.state.Store(int32(StateInitialized))
	i.logger.Log(inv.Context(), m.cfg.LogLevel, "performance counter initialized",
		intercept.MethodField(inv),
		clog.String("counter", i.counters.FullName(m.cfg.Name)),
		clog.String("type", string(m.cfg.Type)))
}

func validate(cfg *Config) error {
	if cfg.Decrement && cfg.Type != TypeNumber {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "perfcounter: %s counter cannot be decremented", cfg.Type)
	}
	return nil
}

// State 返回方法计数器的初始化状态；方法尚未被调用时返回 StateNone
func (i *Interceptor) State(method intercept.Method) State {
	m, ok := i.registry.Marker(method)
	if !ok {
		return StateNone
	}
	return State(m.state.Load())
}
