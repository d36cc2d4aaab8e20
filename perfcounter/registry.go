package perfcounter

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ceyewan/aspect/xerrors"
)

// DefaultPrefix 计数器名称前缀
const DefaultPrefix = "interception"

// ErrTypeConflict 同名计数器已以其他类型创建
var ErrTypeConflict = xerrors.New("perfcounter: counter already exists with a different type")

// Pair 一个计数器及其可选的基数计数器
type Pair struct {
	Type    CounterType
	Gauge   prometheus.Gauge   // number
	Counter prometheus.Counter // rate、average
	Base    prometheus.Counter // average
}

// Registry 进程级计数器注册表，同名计数器只创建一次
//
// 一个进程通常只创建一个 Registry 并传给所有 perfcounter 拦截器。
type Registry struct {
	reg    prometheus.Registerer
	prefix string

	mu    sync.Mutex
	pairs map[string]*Pair
}

// RegistryOption Registry 选项
type RegistryOption func(*Registry)

// WithPrefix 设置计数器名称前缀（默认："interception"）
func WithPrefix(prefix string) RegistryOption {
	return func(r *Registry) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRegistry 创建计数器注册表，reg 为 nil 时使用 prometheus.DefaultRegisterer
func NewRegistry(reg prometheus.Registerer, opts ...RegistryOption) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Registry{reg: reg, prefix: DefaultPrefix, pairs: make(map[string]*Pair)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FullName 返回 "<prefix>:<name>"
func (r *Registry) FullName(name string) string {
	return r.prefix + ":" + name
}

// Pair 返回配置对应的计数器，不存在时创建并注册
func (r *Registry) Pair(cfg *Config) (*Pair, error) {
	if cfg.Name == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "perfcounter: counter name is required")
	}
	name := r.FullName(cfg.Name)
	help := cfg.Help
	if help == "" {
		help = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pairs[name]; ok && !cfg.AlwaysRecreate {
		if p.Type != cfg.Type {
			return nil, xerrors.Wrapf(ErrTypeConflict, "%s is %s, want %s", name, p.Type, cfg.Type)
		}
		return p, nil
	}

	p := &Pair{Type: cfg.Type}
	switch cfg.Type {
	case TypeNumber:
		g, err := r.gauge(name, help, cfg.AlwaysRecreate)
		if err != nil {
			return nil, err
		}
		p.Gauge = g
	case TypeRate, TypeAverage:
		c, err := r.counter(name, help, cfg.AlwaysRecreate)
		if err != nil {
			return nil, err
		}
		p.Counter = c
		if cfg.Type == TypeAverage {
			if p.Base, err = r.counter(name+"_base", help, cfg.AlwaysRecreate); err != nil {
				return nil, err
			}
		}
	default:
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "perfcounter: unknown counter type %q", cfg.Type)
	}

	r.pairs[name] = p
	return p, nil
}

func (r *Registry) gauge(name, help string, recreate bool) (prometheus.Gauge, error) {
	c, err := r.register(prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}), recreate)
	if err != nil {
		return nil, err
	}
	g, ok := c.(prometheus.Gauge)
	if !ok {
		return nil, xerrors.Wrapf(ErrTypeConflict, "%s is registered as %T", name, c)
	}
	return g, nil
}

func (r *Registry) counter(name, help string, recreate bool) (prometheus.Counter, error) {
	c, err := r.register(prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help}), recreate)
	if err != nil {
		return nil, err
	}
	ctr, ok := c.(prometheus.Counter)
	if !ok {
		return nil, xerrors.Wrapf(ErrTypeConflict, "%s is registered as %T", name, c)
	}
	return ctr, nil
}

// register 注册收集器；已注册时复用已有的收集器，recreate 为 true 时先注销
func (r *Registry) register(c prometheus.Collector, recreate bool) (prometheus.Collector, error) {
	if recreate {
		r.reg.Unregister(c)
	}
	if err := r.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, xerrors.Wrap(err, "perfcounter: register collector")
	}
	return c, nil
}
