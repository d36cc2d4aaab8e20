package synchronized

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aspect/intercept"
)

var reserve = intercept.Method{Type: "inventory.Store", Name: "Reserve"}

type store struct {
	mu Mutex
}

func (s *store) SyncRoot() Mutex { return s.mu }

func newPipeline(cfg *Config) *intercept.Pipeline {
	catalog := intercept.NewCatalog().DeclareMethod(reserve, cfg)
	return intercept.NewPipeline(catalog, []intercept.Interceptor{New(catalog)})
}

func invoke(p *intercept.Pipeline, target any, fn func() error) error {
	_, err := p.Invoke(context.Background(), intercept.Call{
		Target: target,
		Method: reserve,
		Fn: func(context.Context, []any) (any, error) {
			return nil, fn()
		},
	})
	return err
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, Kind, cfg.Kind())
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.FailOnTimeout)
}

func TestSynchronized_SerializesCalls(t *testing.T) {
	p := newPipeline(NewConfig())
	target := &store{mu: NewMutex()}

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := invoke(p, target, func() error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestSynchronized_TimeoutSkipsCall(t *testing.T) {
	cfg := NewConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := newPipeline(cfg)
	target := &store{mu: NewMutex()}

	ok, err := target.mu.TryLock(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	defer target.mu.Unlock(context.Background())

	executed := false
	err = invoke(p, target, func() error { executed = true; return nil })
	assert.NoError(t, err)
	assert.False(t, executed)
}

func TestSynchronized_FailOnTimeout(t *testing.T) {
	cfg := NewConfig()
	cfg.Timeout = 0
	cfg.FailOnTimeout = true
	p := newPipeline(cfg)
	target := &store{mu: NewMutex()}

	ok, _ := target.mu.TryLock(context.Background(), 0)
	require.True(t, ok)

	err := invoke(p, target, func() error { return nil })
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, target.mu.Unlock(context.Background()))
	assert.NoError(t, invoke(p, target, func() error { return nil }))
}

func TestSynchronized_ReleasesOnPanic(t *testing.T) {
	cfg := NewConfig()
	cfg.Timeout = 0
	cfg.FailOnTimeout = true
	p := newPipeline(cfg)
	target := &store{mu: NewMutex()}

	assert.Panics(t, func() {
		_ = invoke(p, target, func() error { panic("boom") })
	})
	assert.NoError(t, invoke(p, target, func() error { return nil }))
}

func TestSynchronized_NoSyncRoot(t *testing.T) {
	p := newPipeline(NewConfig())

	executed := 0
	assert.NoError(t, invoke(p, struct{}{}, func() error { executed++; return nil }))
	assert.NoError(t, invoke(p, &store{}, func() error { executed++; return nil }))
	assert.Equal(t, 2, executed)
}

func TestSynchronized_Disabled(t *testing.T) {
	cfg := NewConfig()
	cfg.Intercept = false
	cfg.Timeout = 0
	cfg.FailOnTimeout = true
	p := newPipeline(cfg)
	target := &store{mu: NewMutex()}

	ok, _ := target.mu.TryLock(context.Background(), 0)
	require.True(t, ok)

	executed := false
	assert.NoError(t, invoke(p, target, func() error { executed = true; return nil }))
	assert.True(t, executed)
}

func TestSynchronized_SetDefault(t *testing.T) {
	s := New(nil)
	assert.Error(t, s.SetDefault(nil))
	assert.NoError(t, s.SetDefault(NewConfig()))
}

func TestMutex_TryLock(t *testing.T) {
	ctx := context.Background()
	mu := NewMutex()

	ok, err := mu.TryLock(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mu.TryLock(ctx, 10*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	ok, err = mu.TryLock(cancelled, -1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = mu.Unlock(ctx)
	}()
	ok, err = mu.TryLock(ctx, -1)
	assert.NoError(t, err)
	assert.True(t, ok)
}
