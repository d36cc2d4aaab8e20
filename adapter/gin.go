package adapter

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// GinMiddleware 返回经过拦截管道执行后续处理函数的 gin 中间件
//
//	r := gin.New()
//	r.Use(adapter.GinMiddleware(pipeline, adapter.WithLogger(logger)))
//
// 处理函数通过 c.Error 记录的最后一个错误，或 5xx 状态码，视为调用失败。
// 没有匹配路由的请求直接放行。
func GinMiddleware(p *intercept.Pipeline, opts ...Option) gin.HandlerFunc {
	o := applyOptions(opts)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			// 未匹配任何路由（404/405），不经过拦截管道
			c.Next()
			return
		}
		method := intercept.Method{Type: TypeHTTP, Name: c.Request.Method + " " + route}

		executed := false
		_, err := p.Invoke(c.Request.Context(), intercept.Call{
			Target: c,
			Method: method,
			Fn: func(ctx context.Context, _ []any) (any, error) {
				executed = true
				c.Request = c.Request.WithContext(ctx)
				c.Next()
				if len(c.Errors) > 0 {
					return nil, c.Errors.Last().Err
				}
				if status := c.Writer.Status(); status >= 500 {
					return nil, xerrors.Wrapf(ErrServerError, "status %d", status)
				}
				return nil, nil
			},
		})

		switch {
		case err != nil && c.Writer.Written():
			o.logger.DebugContext(c.Request.Context(), "request failed after response was written",
				clog.String("method", method.String()), clog.Error(err))
		case err != nil:
			status := HTTPStatus(err)
			o.logger.WarnContext(c.Request.Context(), "request rejected by pipeline",
				clog.String("method", method.String()), clog.Int("status", status), clog.Error(err))
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		case !executed:
			c.AbortWithStatus(http.StatusNoContent)
		}
	}
}
