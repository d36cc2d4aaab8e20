package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// Factory 返回某一策略的默认配置，Decode 以其 Kind 识别声明
type Factory func() intercept.Declaration

// entry 一条声明：Method 为空时为类型级声明
type entry struct {
	Type     string           `mapstructure:"type"`
	Method   string           `mapstructure:"method"`
	Policies []map[string]any `mapstructure:"policies"`
}

// Decode 把 key 下的声明列表解码为 Catalog
//
//	interception:
//	  - type: orders.Service
//	    method: Get          # 省略时为类型级声明
//	    policies:
//	      - kind: cache
//	        ttl: 100ms
//
// 每条策略先由对应工厂生成默认配置，再用声明中的字段覆盖。
// 未知的 kind、未知字段以及缺少 type 的条目都会返回错误。
func Decode(l Loader, key string, factories ...Factory) (*intercept.Catalog, error) {
	byKind := make(map[intercept.Kind]Factory, len(factories))
	for _, f := range factories {
		byKind[f().Kind()] = f
	}

	if raw := l.Get(key); raw != nil {
		if _, ok := raw.([]any); !ok {
			return nil, xerrors.Wrapf(ErrMalformedDeclaration, "%s: expected a list, got %T", key, raw)
		}
	}

	var entries []entry
	if err := l.UnmarshalKey(key, &entries); err != nil {
		return nil, xerrors.Wrapf(ErrMalformedDeclaration, "%s: %v", key, err)
	}

	catalog := intercept.NewCatalog()
	for i, e := range entries {
		if e.Type == "" {
			return nil, xerrors.Wrapf(ErrMalformedDeclaration, "%s[%d]: type is required", key, i)
		}

		decls := make([]intercept.Declaration, 0, len(e.Policies))
		for j, raw := range e.Policies {
			where := fmt.Sprintf("%s[%d].policies[%d]", key, i, j)
			decl, err := decodePolicy(raw, byKind)
			if err != nil {
				return nil, xerrors.Wrap(err, where)
			}
			decls = append(decls, decl)
		}

		if e.Method == "" {
			catalog.DeclareType(e.Type, decls...)
		} else {
			catalog.DeclareMethod(intercept.Method{Type: e.Type, Name: e.Method}, decls...)
		}
	}
	return catalog, nil
}

func decodePolicy(raw map[string]any, byKind map[intercept.Kind]Factory) (intercept.Declaration, error) {
	kind, ok := raw["kind"].(string)
	if !ok || kind == "" {
		return nil, xerrors.Wrap(ErrMalformedDeclaration, "kind is required")
	}
	factory, ok := byKind[intercept.Kind(kind)]
	if !ok {
		return nil, xerrors.Wrapf(ErrUnknownKind, "%q", kind)
	}

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != "kind" {
			fields[k] = v
		}
	}

	decl := factory()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           decl,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "create decoder")
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, xerrors.Wrapf(ErrMalformedDeclaration, "%s: %v", kind, err)
	}
	return decl, nil
}
