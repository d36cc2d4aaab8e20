package cache

import (
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// entry 方法的缓存项，写入后不再修改
type entry struct {
	value  any
	stored time.Time
}

// store 按方法标识保存缓存项的状态表
//
// 有效期由拦截器根据各方法的 TTL 判断，otter 只负责容量上限。
type store struct {
	cache *otter.Cache[intercept.Method, *entry]
}

func newStore(capacity int) (*store, error) {
	c, err := otter.New(&otter.Options[intercept.Method, *entry]{
		MaximumSize: capacity,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to build otter cache")
	}
	return &store{cache: c}, nil
}

func (s *store) get(key intercept.Method) (*entry, bool) {
	return s.cache.GetIfPresent(key)
}

func (s *store) set(key intercept.Method, value any) {
	s.cache.Set(key, &entry{value: value, stored: time.Now()})
}

func (s *store) invalidate(key intercept.Method) {
	s.cache.Invalidate(key)
}

func (s *store) close() {
	s.cache.StopAllGoroutines()
}
