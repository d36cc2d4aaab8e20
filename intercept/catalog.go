package intercept

import "sync"

// Source 声明式配置查询接口
//
// 每次查询返回一个独立的候选列表，列表按声明顺序排列。
type Source interface {
	// ForMethod 返回声明在方法上的指定类型配置
	ForMethod(kind Kind, m Method) []Declaration
	// ForType 返回声明在类型上的指定类型配置
	ForType(kind Kind, typeName string) []Declaration
	// Declared 返回方法可见的全部声明：先类型级（声明类型、实现类型），再方法级（方法、实现方法）
	Declared(method, implementation Method) []Declaration
}

// Catalog 在启动时构建的显式配置目录，实现 Source
type Catalog struct {
	mu      sync.RWMutex
	methods map[Method][]Declaration
	types   map[string][]Declaration
}

// NewCatalog 创建空目录
func NewCatalog() *Catalog {
	return &Catalog{
		methods: make(map[Method][]Declaration),
		types:   make(map[string][]Declaration),
	}
}

// DeclareMethod 在方法上声明策略配置
func (c *Catalog) DeclareMethod(m Method, decls ...Declaration) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range decls {
		if d != nil {
			c.methods[m] = append(c.methods[m], d)
		}
	}
	return c
}

// DeclareType 在类型上声明策略配置，对该类型的所有方法生效
func (c *Catalog) DeclareType(typeName string, decls ...Declaration) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range decls {
		if d != nil {
			c.types[typeName] = append(c.types[typeName], d)
		}
	}
	return c
}

func (c *Catalog) ForMethod(kind Kind, m Method) []Declaration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filterKind(c.methods[m], kind)
}

func (c *Catalog) ForType(kind Kind, typeName string) []Declaration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filterKind(c.types[typeName], kind)
}

func (c *Catalog) Declared(method, implementation Method) []Declaration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Declaration
	out = append(out, c.types[method.Type]...)
	if implementation.Type != "" && implementation.Type != method.Type {
		out = append(out, c.types[implementation.Type]...)
	}
	out = append(out, c.methods[method]...)
	if !implementation.IsZero() && implementation != method {
		out = append(out, c.methods[implementation]...)
	}
	return out
}

// Len 返回声明总数
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, ds := range c.methods {
		n += len(ds)
	}
	for _, ds := range c.types {
		n += len(ds)
	}
	return n
}

func filterKind(decls []Declaration, kind Kind) []Declaration {
	var out []Declaration
	for _, d := range decls {
		if d.Kind() == kind {
			out = append(out, d)
		}
	}
	return out
}
