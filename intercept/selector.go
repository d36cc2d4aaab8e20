package intercept

import (
	"cmp"
	"slices"
)

// Selector 根据声明的 Order 选出并排序需要执行的拦截器
//
// Selector 没有任何状态，任意两个实例相等且可作为 map 键，
// Pipeline 以它作为链路缓存键的一部分。
type Selector struct{}

// Select 返回有序的拦截器子集
//
// 没有拦截器或没有声明时原样返回 interceptors。否则按 Order 稳定排序声明，
// 为每个声明找到 Kind 相同的拦截器；没有匹配的声明被忽略，
// 同一个拦截器只会被选中一次。
//
// 拦截器的标记按方法解析且只取第一个命中的声明，同一实例包裹两层时
// 会对一次调用应用两遍同一策略（重复计数、重复加锁）。同类声明有几个
// 不同的拦截器实例，就依次选中几个。
func (Selector) Select(declared []Declaration, interceptors []Interceptor) []Interceptor {
	if len(interceptors) == 0 || len(declared) == 0 {
		return interceptors
	}

	sorted := slices.Clone(declared)
	slices.SortStableFunc(sorted, func(a, b Declaration) int {
		return cmp.Compare(a.Common().Order, b.Common().Order)
	})

	used := make([]bool, len(interceptors))
	selected := make([]Interceptor, 0, len(sorted))
	for _, d := range sorted {
		for i, ic := range interceptors {
			if !used[i] && ic.Kind() == d.Kind() {
				used[i] = true
				selected = append(selected, ic)
				break
			}
		}
	}
	return selected
}
