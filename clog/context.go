package clog

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	// NamespaceKey 是日志中命名空间的字段名
	NamespaceKey = "namespace"
	traceIDKey   = "trace_id"
	spanIDKey    = "span_id"
)

// extractContextFields 从 context 中提取配置的字段
func extractContextFields(ctx context.Context, o *options, attrs *[]slog.Attr) {
	if ctx == nil || o == nil {
		return
	}

	for _, cf := range o.contextFields {
		if val := ctx.Value(cf.Key); val != nil {
			*attrs = append(*attrs, slog.Any(cf.FieldName, val))
		}
	}

	if o.enableTraceExtraction {
		sc := trace.SpanContextFromContext(ctx)
		if sc.HasTraceID() {
			*attrs = append(*attrs, slog.String(traceIDKey, sc.TraceID().String()))
		}
		if sc.HasSpanID() {
			*attrs = append(*attrs, slog.String(spanIDKey, sc.SpanID().String()))
		}
	}
}
