package intercept

import (
	"sync"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/xerrors"
)

// Builder 根据解析出的配置创建标记（配置 + 策略私有状态）
type Builder[M any] func(inv Invocation, decl Declaration) (M, error)

// slot 缓存项；ok 为 false 表示该方法不应用此策略
type slot[M any] struct {
	marker M
	ok     bool
}

// Registry 按方法惰性解析并缓存标记
//
// 快路径是 sync.Map 的无锁读取；未命中时在注册表级互斥锁内二次检查，
// 保证每个方法最多解析一次。解析失败与 Intercept=false 都缓存为"无策略"。
type Registry[M any] struct {
	kind      Kind
	source    Source
	newConfig func() Declaration
	build     Builder[M]
	logger    clog.Logger

	markers  sync.Map // Method -> *slot[M]
	mu       sync.Mutex
	fallback Declaration
}

// NewRegistry 创建标记注册表
//
// newConfig 在没有任何声明且未设置默认实例时提供默认配置；source 可以为 nil。
func NewRegistry[M any](kind Kind, source Source, newConfig func() Declaration, build Builder[M], opts ...Option) *Registry[M] {
	o := applyOptions(opts)
	return &Registry[M]{
		kind:      kind,
		source:    source,
		newConfig: newConfig,
		build:     build,
		logger:    o.logger,
	}
}

// Resolve 返回调用对应的标记，ok 为 false 表示不应用此策略
func (r *Registry[M]) Resolve(inv Invocation) (M, bool) {
	key := Identity(inv)
	if v, ok := r.markers.Load(key); ok {
		s := v.(*slot[M])
		return s.marker, s.ok
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.markers.Load(key); ok {
		s := v.(*slot[M])
		return s.marker, s.ok
	}

	s := r.resolve(inv)
	r.markers.Store(key, s)
	return s.marker, s.ok
}

// SetDefault 设置默认配置实例，未声明配置的方法使用它的克隆
//
// 只影响尚未解析的方法。
func (r *Registry[M]) SetDefault(decl Declaration) error {
	if decl == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "intercept: default declaration is nil")
	}
	if decl.Kind() != r.kind {
		return xerrors.Wrapf(ErrKindMismatch, "want %s, got %s", r.kind, decl.Kind())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = decl.Clone()
	return nil
}

// Marker 返回方法已解析的标记，不会触发解析
func (r *Registry[M]) Marker(m Method) (M, bool) {
	if v, ok := r.markers.Load(m); ok {
		s := v.(*slot[M])
		return s.marker, s.ok
	}
	var zero M
	return zero, false
}

// Markers 返回当前已解析且生效的标记快照
func (r *Registry[M]) Markers() map[Method]M {
	out := make(map[Method]M)
	r.markers.Range(func(k, v any) bool {
		if s := v.(*slot[M]); s.ok {
			out[k.(Method)] = s.marker
		}
		return true
	})
	return out
}

// resolve 在 r.mu 内执行
func (r *Registry[M]) resolve(inv Invocation) (s *slot[M]) {
	s = &slot[M]{}
	defer func() {
		if err := xerrors.Recovered(recover()); err != nil {
			r.logger.Error("marker resolution panicked", MethodField(inv),
				clog.String("policy", string(r.kind)), clog.Error(err))
			s = &slot[M]{}
		}
	}()

	decl := r.lookup(inv)
	if decl == nil {
		r.logger.Error("no configuration for policy", MethodField(inv), clog.String("policy", string(r.kind)))
		return s
	}
	if !decl.Common().Intercept {
		r.logger.Debug("policy disabled for method", MethodField(inv), clog.String("policy", string(r.kind)))
		return s
	}

	marker, err := r.build(inv, decl)
	if err != nil {
		r.logger.Error("failed to build marker", MethodField(inv),
			clog.String("policy", string(r.kind)), clog.Error(err))
		return s
	}
	return &slot[M]{marker: marker, ok: true}
}

// lookup 依次查找：方法、实现方法、声明类型、实现类型；第一个命中者胜出
func (r *Registry[M]) lookup(inv Invocation) Declaration {
	if r.source != nil {
		method, impl := inv.Method(), inv.Implementation()
		candidates := [][]Declaration{r.source.ForMethod(r.kind, method)}
		if !impl.IsZero() && impl != method {
			candidates = append(candidates, r.source.ForMethod(r.kind, impl))
		}
		candidates = append(candidates, r.source.ForType(r.kind, inv.DeclaringType()))
		if impl.Type != "" && impl.Type != inv.DeclaringType() {
			candidates = append(candidates, r.source.ForType(r.kind, impl.Type))
		}
		for _, list := range candidates {
			if len(list) > 0 {
				return list[0].Clone()
			}
		}
	}
	if r.fallback != nil {
		return r.fallback.Clone()
	}
	if r.newConfig != nil {
		return r.newConfig()
	}
	return nil
}
