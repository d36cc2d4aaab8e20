package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// HTTPMiddleware 返回 net/http 中间件，路由模板取自 chi 的路由上下文
//
// chi 在路由匹配后才填充模板，因此应通过 With 或在路由组内挂载：
//
//	r := chi.NewRouter()
//	r.With(adapter.HTTPMiddleware(pipeline)).Get("/orders/{id}", getOrder)
//
// 没有 chi 路由上下文时使用 http.ServeMux 匹配的模式（r.Pattern），两者都没有时
// 请求直接交给 next，不经过拦截管道：原始路径由客户端决定，不能作为方法标识。
func HTTPMiddleware(p *intercept.Pipeline, opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := routePattern(r)
			if !ok {
				o.logger.DebugContext(r.Context(), "no route pattern, bypassing pipeline",
					clog.String("path", r.URL.Path))
				next.ServeHTTP(w, r)
				return
			}
			method := intercept.Method{Type: TypeHTTP, Name: r.Method + " " + route}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			executed := false
			_, err := p.Invoke(r.Context(), intercept.Call{
				Target: next,
				Method: method,
				Args:   []any{r},
				Fn: func(ctx context.Context, _ []any) (any, error) {
					executed = true
					next.ServeHTTP(ww, r.WithContext(ctx))
					if status := ww.Status(); status >= 500 {
						return nil, xerrors.Wrapf(ErrServerError, "status %d", status)
					}
					return nil, nil
				},
			})

			switch {
			case err != nil && ww.Status() != 0:
				o.logger.DebugContext(r.Context(), "request failed after response was written",
					clog.String("method", method.String()), clog.Error(err))
			case err != nil:
				status := HTTPStatus(err)
				o.logger.WarnContext(r.Context(), "request rejected by pipeline",
					clog.String("method", method.String()), clog.Int("status", status), clog.Error(err))
				http.Error(w, err.Error(), status)
			case !executed:
				w.WriteHeader(http.StatusNoContent)
			}
		})
	}
}

// routePattern 返回匹配的路由模板，ServeMux 模式中的方法前缀会被去掉
func routePattern(r *http.Request) (string, bool) {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern, true
		}
	}
	if r.Pattern == "" {
		return "", false
	}
	if _, rest, found := strings.Cut(r.Pattern, " "); found {
		return strings.TrimSpace(rest), true
	}
	return r.Pattern, true
}
