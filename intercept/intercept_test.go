package intercept

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// 测试辅助
// ============================================================================

type testConfig struct {
	Options
	kind Kind
	Name string
}

func declare(kind Kind, order int, name string) *testConfig {
	return &testConfig{Options: Options{Order: order, Intercept: true}, kind: kind, Name: name}
}

func (c *testConfig) Kind() Kind { return c.kind }

func (c *testConfig) Clone() Declaration {
	cp := *c
	return &cp
}

type marker struct {
	cfg *testConfig
}

func buildMarker(_ Invocation, decl Declaration) (*marker, error) {
	return &marker{cfg: decl.(*testConfig)}, nil
}

func newInvocation(method, impl Method) *invocation {
	return &invocation{ctx: context.Background(), call: Call{Method: method, Implementation: impl}}
}

// countingSource 统计配置查询次数
type countingSource struct {
	Source
	lookups atomic.Int32
}

func (s *countingSource) ForMethod(kind Kind, m Method) []Declaration {
	s.lookups.Add(1)
	return s.Source.ForMethod(kind, m)
}

// recorder 记录进入顺序的拦截器
type recorder struct {
	kind  Kind
	trace *[]Kind
}

func (r *recorder) Kind() Kind { return r.kind }

func (r *recorder) Intercept(inv Invocation) error {
	*r.trace = append(*r.trace, r.kind)
	return inv.Proceed()
}

var (
	get     = Method{Type: "orders.Service", Name: "Get"}
	getImpl = Method{Type: "orders.serviceImpl", Name: "Get"}
)

// ============================================================================
// Registry
// ============================================================================

func TestRegistryResolvesOncePerMethodUnderConcurrency(t *testing.T) {
	source := &countingSource{Source: NewCatalog().DeclareMethod(get, declare("test", 0, "m"))}
	registry := NewRegistry("test", source, nil, buildMarker)

	const n = 64
	results := make([]*marker, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			m, ok := registry.Resolve(newInvocation(get, Method{}))
			if !ok {
				return errors.New("marker not resolved")
			}
			results[i] = m
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// 只解析了一次，所有调用拿到同一个标记
	assert.Equal(t, int32(1), source.lookups.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestRegistryLookupPriority(t *testing.T) {
	catalog := NewCatalog().
		DeclareType(getImpl.Type, declare("test", 0, "impl-type")).
		DeclareType(get.Type, declare("test", 0, "type")).
		DeclareMethod(getImpl, declare("test", 0, "impl")).
		DeclareMethod(get, declare("test", 0, "method"))
	registry := NewRegistry("test", catalog, nil, buildMarker)

	m, ok := registry.Resolve(newInvocation(get, getImpl))
	require.True(t, ok)
	assert.Equal(t, "method", m.cfg.Name)

	// 方法上没有声明时使用实现方法
	list := Method{Type: "orders.Service", Name: "List"}
	listImpl := Method{Type: "orders.serviceImpl", Name: "List"}
	catalog.DeclareMethod(listImpl, declare("test", 0, "impl"))
	m, ok = registry.Resolve(newInvocation(list, listImpl))
	require.True(t, ok)
	assert.Equal(t, "impl", m.cfg.Name)

	// 再退到声明类型，最后是实现类型
	m, ok = registry.Resolve(newInvocation(Method{Type: "orders.Service", Name: "Count"}, Method{}))
	require.True(t, ok)
	assert.Equal(t, "type", m.cfg.Name)

	m, ok = registry.Resolve(newInvocation(Method{Type: "orders.Reader", Name: "Count"}, Method{Type: getImpl.Type, Name: "Count"}))
	require.True(t, ok)
	assert.Equal(t, "impl-type", m.cfg.Name)
}

func TestRegistryDefaults(t *testing.T) {
	registry := NewRegistry("test", NewCatalog(), func() Declaration {
		return declare("test", 0, "fresh")
	}, buildMarker)

	m, ok := registry.Resolve(newInvocation(get, Method{}))
	require.True(t, ok)
	assert.Equal(t, "fresh", m.cfg.Name)

	require.NoError(t, registry.SetDefault(declare("test", 0, "default")))
	a, ok := registry.Resolve(newInvocation(Method{Type: "x", Name: "A"}, Method{}))
	require.True(t, ok)
	b, ok := registry.Resolve(newInvocation(Method{Type: "x", Name: "B"}, Method{}))
	require.True(t, ok)

	// 默认实例被克隆，每个方法拿到独立的副本
	assert.Equal(t, "default", a.cfg.Name)
	assert.NotSame(t, a.cfg, b.cfg)

	err := registry.SetDefault(declare("other", 0, ""))
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestRegistryNoPolicy(t *testing.T) {
	disabled := declare("test", 0, "off")
	disabled.Intercept = false

	var builds atomic.Int32
	source := &countingSource{Source: NewCatalog().DeclareMethod(get, disabled)}
	registry := NewRegistry("test", source, nil, func(inv Invocation, decl Declaration) (*marker, error) {
		builds.Add(1)
		return buildMarker(inv, decl)
	})

	for i := 0; i < 3; i++ {
		_, ok := registry.Resolve(newInvocation(get, Method{}))
		assert.False(t, ok)
	}
	assert.Equal(t, int32(0), builds.Load())
	assert.Equal(t, int32(1), source.lookups.Load())
	assert.Empty(t, registry.Markers())
}

func TestRegistryResolutionFailureIsCachedAsNoPolicy(t *testing.T) {
	catalog := NewCatalog().
		DeclareMethod(Method{Type: "x", Name: "Err"}, declare("test", 0, "")).
		DeclareMethod(Method{Type: "x", Name: "Panic"}, declare("test", 0, ""))

	var builds atomic.Int32
	registry := NewRegistry("test", catalog, nil, func(inv Invocation, _ Declaration) (*marker, error) {
		builds.Add(1)
		if inv.Method().Name == "Panic" {
			panic("boom")
		}
		return nil, errors.New("cannot build")
	})

	for i := 0; i < 2; i++ {
		_, ok := registry.Resolve(newInvocation(Method{Type: "x", Name: "Err"}, Method{}))
		assert.False(t, ok)
		assert.NotPanics(t, func() {
			_, ok := registry.Resolve(newInvocation(Method{Type: "x", Name: "Panic"}, Method{}))
			assert.False(t, ok)
		})
	}
	assert.Equal(t, int32(2), builds.Load())
}

func TestRegistryMarkersSnapshot(t *testing.T) {
	registry := NewRegistry("test", nil, func() Declaration { return declare("test", 0, "") }, buildMarker)
	registry.Resolve(newInvocation(get, getImpl))
	registry.Resolve(newInvocation(Method{Type: "x", Name: "Y"}, Method{}))

	snapshot := registry.Markers()
	assert.Len(t, snapshot, 2)
	assert.Contains(t, snapshot, getImpl)
	assert.Contains(t, snapshot, Method{Type: "x", Name: "Y"})
}

// ============================================================================
// Selector
// ============================================================================

func TestSelectorEquality(t *testing.T) {
	a, b := Selector{}, Selector{}
	assert.Equal(t, a, b)
	assert.True(t, a == b)

	cache := map[Selector]int{a: 1}
	assert.Equal(t, 1, cache[b])
}

func TestSelectorWithoutDeclarationsKeepsInput(t *testing.T) {
	var trace []Kind
	interceptors := []Interceptor{&recorder{kind: "b", trace: &trace}, &recorder{kind: "a", trace: &trace}}

	assert.Equal(t, interceptors, Selector{}.Select(nil, interceptors))
	assert.Empty(t, Selector{}.Select([]Declaration{declare("a", 0, "")}, nil))
}

func TestSelectorOrdersAndSkipsUnmatched(t *testing.T) {
	var trace []Kind
	lock := &recorder{kind: "synchronized", trace: &trace}
	logging := &recorder{kind: "invocation", trace: &trace}
	exception := &recorder{kind: "exception", trace: &trace}
	interceptors := []Interceptor{exception, logging, lock}

	declared := []Declaration{
		declare("synchronized", math.MinInt, ""),
		declare("invocation", 0, ""),
		declare("exception", 0, ""),
		declare("transaction", -5, ""), // 没有对应的拦截器
		declare("invocation", 3, ""),   // 同一拦截器不会重复选中
	}

	selected := Selector{}.Select(declared, interceptors)
	assert.Equal(t, []Interceptor{lock, logging, exception}, selected)
}

func TestSelectorSameKindDistinctInstances(t *testing.T) {
	var trace []Kind
	first := &recorder{kind: "invocation", trace: &trace}
	second := &recorder{kind: "invocation", trace: &trace}

	declared := []Declaration{declare("invocation", 0, ""), declare("invocation", 1, "")}
	assert.Equal(t, []Interceptor{first, second}, Selector{}.Select(declared, []Interceptor{first, second}))
	assert.Equal(t, []Interceptor{first}, Selector{}.Select(declared, []Interceptor{first}))
}

// ============================================================================
// Pipeline
// ============================================================================

func TestPipelineNestingOrder(t *testing.T) {
	var trace []Kind
	interceptors := []Interceptor{
		&recorder{kind: "exception", trace: &trace},
		&recorder{kind: "invocation", trace: &trace},
		&recorder{kind: "synchronized", trace: &trace},
	}
	catalog := NewCatalog().
		DeclareType("orders.Service", declare("synchronized", math.MinInt, "")).
		DeclareMethod(get, declare("exception", 2, ""), declare("invocation", 0, ""))

	pipeline := NewPipeline(catalog, interceptors)
	v, err := pipeline.Invoke(context.Background(), Call{
		Method: get,
		Fn: func(context.Context, []any) (any, error) {
			trace = append(trace, "call")
			return "ok", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []Kind{"synchronized", "invocation", "exception", "call"}, trace)

	// 只有类型级声明的方法只运行对应的拦截器
	trace = nil
	_, err = pipeline.Invoke(context.Background(), Call{
		Method: Method{Type: "orders.Service", Name: "List"},
		Fn:     func(context.Context, []any) (any, error) { return nil, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, []Kind{"synchronized"}, trace)
}

func TestPipelineCachesChain(t *testing.T) {
	var trace []Kind
	pipeline := NewPipeline(NewCatalog().DeclareMethod(get, declare("a", 0, "")),
		[]Interceptor{&recorder{kind: "a", trace: &trace}})

	first := pipeline.Chain(get, Method{})
	second := pipeline.Chain(get, Method{})
	require.Len(t, first, 1)
	assert.Same(t, &first[0], &second[0])
}

type twice struct{}

func (twice) Kind() Kind { return "twice" }

func (twice) Intercept(inv Invocation) error {
	if err := inv.Proceed(); err != nil {
		return err
	}
	return inv.Proceed()
}

type ctxKey struct{}

type withValue struct{}

func (withValue) Kind() Kind { return "value" }

func (withValue) Intercept(inv Invocation) error {
	prev := inv.Context()
	inv.SetContext(context.WithValue(prev, ctxKey{}, "injected"))
	defer inv.SetContext(prev)
	return inv.Proceed()
}

func TestPipelineProceedTwiceAndContext(t *testing.T) {
	var calls int
	pipeline := NewPipeline(nil, []Interceptor{twice{}, withValue{}})

	v, err := pipeline.Invoke(context.Background(), Call{
		Method: get,
		Args:   []any{"id-1"},
		Fn: func(ctx context.Context, args []any) (any, error) {
			calls++
			return ctx.Value(ctxKey{}).(string) + ":" + args[0].(string), nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "injected:id-1", v)
}

func TestPipelineErrors(t *testing.T) {
	pipeline := NewPipeline(nil, nil)

	_, err := pipeline.Invoke(context.Background(), Call{Method: get})
	assert.ErrorIs(t, err, ErrNoFunction)

	boom := errors.New("boom")
	n, err := As[int](pipeline.Invoke(context.Background(), Call{
		Method: get,
		Fn:     func(context.Context, []any) (any, error) { return 7, boom },
	}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 7, n)

	_, err = As[string](pipeline.Invoke(context.Background(), Call{
		Method: get,
		Fn:     func(context.Context, []any) (any, error) { return 7, nil },
	}))
	assert.ErrorIs(t, err, ErrResultType)
}

func TestMethodAndOutcome(t *testing.T) {
	assert.Equal(t, "orders.Service.Get", get.String())
	assert.Equal(t, get, ParseMethod("orders.Service.Get"))
	assert.Equal(t, Method{Name: "Get"}, ParseMethod("Get"))
	assert.True(t, Method{}.IsZero())

	assert.NoError(t, Proceeded().Error())
	assert.NoError(t, Reject(nil).Error())
	boom := errors.New("boom")
	assert.ErrorIs(t, Fail(boom).Error(), boom)
	assert.Equal(t, "rejected", Rejected.String())
}
