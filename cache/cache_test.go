package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aspect/intercept"
)

var settings = intercept.Method{Type: "config.Client", Name: "Settings"}

// counter 每次被调用返回递增的值
type counter struct {
	calls int
	err   error
}

func (c *counter) fn(context.Context, []any) (any, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.calls++
	return c.calls, nil
}

func setup(t *testing.T, cfg *Config, opts ...Option) (*intercept.Pipeline, *Interceptor) {
	t.Helper()
	catalog := intercept.NewCatalog().DeclareMethod(settings, cfg)
	c, err := New(catalog, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return intercept.NewPipeline(catalog, []intercept.Interceptor{c}), c
}

func invoke(t *testing.T, p *intercept.Pipeline, src *counter) (int, error) {
	t.Helper()
	return intercept.As[int](p.Invoke(context.Background(), intercept.Call{Method: settings, Fn: src.fn}))
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, Kind, cfg.Kind())
	assert.Equal(t, time.Hour, cfg.TTL)
	assert.True(t, cfg.Intercept)
}

func TestCache_HitWithinTTL(t *testing.T) {
	cfg := NewConfig()
	cfg.TTL = 100 * time.Millisecond
	p, _ := setup(t, cfg)
	src := &counter{}

	first, err := invoke(t, p, src)
	require.NoError(t, err)
	second, err := invoke(t, p, src)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)
}

func TestCache_RefreshAfterTTL(t *testing.T) {
	cfg := NewConfig()
	cfg.TTL = 100 * time.Millisecond
	p, _ := setup(t, cfg)
	src := &counter{}

	first, _ := invoke(t, p, src)
	time.Sleep(150 * time.Millisecond)
	second, err := invoke(t, p, src)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, src.calls)
}

func TestCache_FailureIsNotStored(t *testing.T) {
	cfg := NewConfig()
	cfg.TTL = 0
	p, _ := setup(t, cfg)
	src := &counter{}

	v, err := invoke(t, p, src)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	boom := errors.New("boom")
	src.err = boom
	time.Sleep(time.Millisecond)
	_, err = invoke(t, p, src)
	assert.ErrorIs(t, err, boom)

	// 失败不会覆盖缓存项，恢复后重新刷新
	src.err = nil
	v, err = invoke(t, p, src)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCache_FirstCallFailurePropagates(t *testing.T) {
	p, c := setup(t, NewConfig())
	boom := errors.New("boom")

	_, err := invoke(t, p, &counter{err: boom})
	assert.ErrorIs(t, err, boom)

	_, ok := c.entries.get(settings)
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	p, c := setup(t, NewConfig())
	src := &counter{}

	invoke(t, p, src)
	c.Invalidate(settings)
	v, err := invoke(t, p, src)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCache_Disabled(t *testing.T) {
	cfg := NewConfig()
	cfg.Intercept = false
	p, _ := setup(t, cfg)
	src := &counter{}

	invoke(t, p, src)
	invoke(t, p, src)
	assert.Equal(t, 2, src.calls)
}

func TestCache_NegativeTTLSkipsPolicy(t *testing.T) {
	cfg := NewConfig()
	cfg.TTL = -time.Second
	p, _ := setup(t, cfg)
	src := &counter{}

	invoke(t, p, src)
	invoke(t, p, src)
	assert.Equal(t, 2, src.calls)
}

func TestCache_SetDefault(t *testing.T) {
	c, err := New(nil, WithMaxEntries(16))
	require.NoError(t, err)
	defer c.Close()

	require.Error(t, c.SetDefault(nil))
	require.NoError(t, c.SetDefault(NewConfig()))

	p := intercept.NewPipeline(nil, []intercept.Interceptor{c})
	src := &counter{}
	invoke(t, p, src)
	invoke(t, p, src)
	assert.Equal(t, 1, src.calls)
}
